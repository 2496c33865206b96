// Package hostconfig reconciles server entries into the host application's
// JSON configuration file.
//
// The document is kept as generic JSON so keys this package does not know
// about survive verbatim. Values are only replaced when they fail the
// embedded schema, and every write goes through a temp file and rename.
package hostconfig
