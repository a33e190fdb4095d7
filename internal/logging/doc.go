// Package logging configures slog for notemesh.
//
// Logs are JSON lines written to a size-rotated file under ~/.notemesh/logs/.
// CLI commands additionally mirror them to stderr; the MCP server never does,
// because stdout and stderr belong to the protocol stream.
package logging
