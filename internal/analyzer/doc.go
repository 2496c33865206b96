// Package analyzer inspects the root of an MCP server source and infers how
// it should be installed: language, framework, declared dependencies,
// container manifests, configuration files and the recommended method.
package analyzer
