// Package resources exposes read-only MCP resources: the calendars of the
// default account and the per-account event cache statistics.
package resources
