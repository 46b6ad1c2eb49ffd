// Package cmd implements the command-line interface for gcal-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server (default when no subcommand is given)
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Every serve flag can also be set through a CALENDAR_ prefixed environment
// variable or a YAML file passed with --config.
package cmd
