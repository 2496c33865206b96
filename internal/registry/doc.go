// Package registry persists the installed MCP servers as a JSON array of
// ServerEntry values. Every operation re-reads the file under a process-wide
// lock, so independent Store values for the same path stay consistent.
package registry
