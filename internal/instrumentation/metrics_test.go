package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, provider := newTestProvider(t)

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/mcp", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/mcp", 500, 50*time.Millisecond)
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	ctx, provider := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationList, StatusSuccess, 200*time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationBatch, StatusError, 500*time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationSync, StatusSuccess, 100*time.Millisecond)
}

func TestMetrics_EventCache(t *testing.T) {
	ctx, provider := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	for _, result := range []string{"hit", "stale", "miss"} {
		metrics.RecordCacheLookup(ctx, result)
	}
	metrics.RecordCacheEviction(ctx)
	for _, result := range []string{"unchanged", "changed", "expired", "failed"} {
		metrics.RecordRevalidation(ctx, result)
	}
}

func TestMetrics_Batch(t *testing.T) {
	ctx, provider := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordBatchRequest(ctx, "success", 12)
	metrics.RecordBatchRequest(ctx, "fallback", 50)
	metrics.RecordBatchRequest(ctx, "unsupported", 1)
	metrics.RecordBatchAnomaly(ctx)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx, provider := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordToolInvocation(ctx, "calendar_list_events", StatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "calendar_create_event", StatusError, 50*time.Millisecond)
}

func TestMetrics_RecordToolInvocationWithAccount_DetailedLabels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  true,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	// Should not panic
	provider.Metrics().RecordToolInvocationWithAccount(ctx, "calendar_list_events_multi", StatusSuccess, "work", time.Second)
}

func TestMetrics_DisabledProvider(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()

	// No-op recorder, should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/mcp", 200, time.Millisecond)
	metrics.RecordCacheLookup(ctx, "hit")
	metrics.RecordBatchRequest(ctx, "success", 3)
	metrics.RecordToolInvocation(ctx, "calendar_list_events", StatusSuccess, time.Millisecond)
}

func TestMetrics_NilReceiver(t *testing.T) {
	ctx := context.Background()
	var metrics *Metrics

	// Should not panic
	metrics.RecordCacheLookup(ctx, "miss")
	metrics.RecordCacheEviction(ctx)
	metrics.RecordRevalidation(ctx, "expired")
	metrics.RecordBatchRequest(ctx, "fallback", 2)
	metrics.RecordBatchAnomaly(ctx)
	metrics.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationGet, StatusSuccess, time.Millisecond)
	metrics.RecordToolInvocationWithAccount(ctx, "calendar_get_event", StatusSuccess, "default", time.Millisecond)
}
