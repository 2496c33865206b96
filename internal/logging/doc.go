// Package logging configures the process-wide slog logger for the CLI.
package logging
