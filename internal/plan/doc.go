// Package plan defines the typed installation steps, the Plan that orders
// them, and the Builder that derives a Plan from an analysis and the user's
// options.
//
// Step is a closed set: every variant is listed in Kinds and constructed by
// newStep. Adding a variant means updating the executor's handlers, the
// recovery table and the verifier; each of those packages has a test that
// iterates Kinds and fails when a variant is unhandled.
package plan
