// Package config manages user-level settings stored at ~/.mcpx/config.yaml,
// overridable through MCPX_* environment variables. Settings resolves the
// raw keys into validated values with platform-dependent defaults.
package config
