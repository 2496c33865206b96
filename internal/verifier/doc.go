// Package verifier checks the post-conditions of an installation: the
// install directory is populated, written configuration files parse, the
// container is running and the declared port accepts connections.
//
// Verification never aborts an installation. Callers decide how to present
// a failed Result.
package verifier
