// Package install wires the pipeline together. An Installation resolves a
// source, analyzes it, builds and executes a plan, verifies the result and
// commits it to the host config and the registry. It also uninstalls.
package install
