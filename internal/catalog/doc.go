// Package catalog holds the named server templates users can install with
// "template:<id>". A default catalog is compiled into the binary; a newer copy
// can be downloaded into the user's home directory and takes precedence.
package catalog
