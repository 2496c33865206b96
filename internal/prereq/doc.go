// Package prereq probes the local toolchain an installation depends on
// (git, Node.js, Python, uv, Docker) and compares versions against
// minimums and the runtime constraint a repository declares.
//
// Results are advisory: an installation logs them as warnings and carries
// on, leaving real failures to the executor and its recovery engine.
package prereq
