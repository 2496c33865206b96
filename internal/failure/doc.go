// Package failure defines the closed set of error kinds the installation
// pipeline recognizes and the classifier that maps raw command or I/O
// failures onto them.
package failure
