// Package server holds the runtime state shared by the MCP tools and the
// HTTP endpoints that run beside the MCP transport.
//
// ServerContext creates one Calendar client and one event cache engine per
// account on first use. Tokens are read from disk by a google.TokenProvider;
// accounts never share cached events.
//
// HTTPServer serves the streamable HTTP transport on /mcp together with the
// HealthChecker endpoints (/healthz, /readyz and /healthz/detailed). The
// detailed endpoint includes the cache counters of every account.
// MetricsServer exposes the Prometheus /metrics endpoint on its own port.
package server
