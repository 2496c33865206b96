// Package source describes where an MCP server comes from (a git repository,
// a named template, or a local directory) and gives the analyzer a read-only
// view of the files at the root of that source.
package source
