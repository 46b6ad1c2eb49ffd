// Package common provides shared helpers for the MCP tool packages:
// argument parsing with the defaults every tool agrees on, and the
// instrumentation wrapper that records spans, metrics and logs per call.
package common
