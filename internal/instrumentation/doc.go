// Package instrumentation provides OpenTelemetry metrics and tracing for the
// gcal-mcp server.
//
// # Metrics
//
// Google API:
//   - google_api_operations_total: Counter of Calendar API calls by operation and status
//   - google_api_operation_duration_seconds: Histogram of Calendar API call durations
//
// Event cache:
//   - event_cache_lookups_total: Counter of lookups by result (hit, stale, miss)
//   - event_cache_evictions_total: Counter of capacity evictions
//   - event_cache_revalidations_total: Counter of sync token revalidations by outcome
//
// Batching:
//   - calendar_batch_requests_total: Counter of batch attempts by result (success, fallback, unsupported)
//   - calendar_batch_size: Histogram of sub-requests per attempt
//   - calendar_batch_part_mismatch_total: Counter of responses with the wrong number of parts
//
// MCP tools and HTTP transport:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//   - http_requests_total, http_request_duration_seconds
//
// A nil *Metrics records nothing, so components can be built without a Provider.
//
// # Configuration
//
// DefaultConfig reads the environment:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: gcal-mcp)
package instrumentation
