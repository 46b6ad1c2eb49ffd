// Package batch provides helpers for tools that act on several calendars or
// events in one call.
//
// This package includes helpers for:
//   - Parsing parameters that accept a string, an array or a JSON array string
//   - Formatting per-item results with success and failure counts
//   - Rendering multi-calendar event results in request order
package batch
