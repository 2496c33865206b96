// Package host defines the Services port through which the installer performs
// every side effect: running commands, reading and writing files, probing the
// network, and sleeping. The Local implementation backs the port with the
// operating system; hosttest.Fake backs it with memory for tests.
//
// The package also resolves the OS-specific locations the installer cares
// about (default install roots, the host application's config file) and
// provides the write-to-temp-then-rename helper used for durable JSON files.
package host
