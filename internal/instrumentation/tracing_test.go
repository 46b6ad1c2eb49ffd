package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func newTestProvider(t *testing.T) (context.Context, *Provider) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return ctx, provider
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("calendar_list_events").
		WithAccount("work").
		WithCalendars("team@example.com").
		WithReadOnly(true).
		Build()

	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}

	attrMap := make(map[string]interface{})
	for _, attr := range attrs {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}

	if attrMap[SpanAttrTool] != "calendar_list_events" {
		t.Errorf("expected tool 'calendar_list_events', got %v", attrMap[SpanAttrTool])
	}
	if attrMap[SpanAttrAccount] != "work" {
		t.Errorf("expected account 'work', got %v", attrMap[SpanAttrAccount])
	}
	if attrMap[SpanAttrCalendar] != "team@example.com" {
		t.Errorf("expected calendar 'team@example.com', got %v", attrMap[SpanAttrCalendar])
	}
	if attrMap[SpanAttrReadOnly] != true {
		t.Errorf("expected read_only true, got %v", attrMap[SpanAttrReadOnly])
	}
}

func TestSpanAttributeBuilder_MultipleCalendars(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithCalendars("a", "b", "c").
		Build()

	if len(attrs) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(attrs))
	}
	if string(attrs[0].Key) != SpanAttrCalendarCount || attrs[0].Value.AsInt64() != 3 {
		t.Errorf("expected calendar count 3, got %v=%v", attrs[0].Key, attrs[0].Value.AsInterface())
	}
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("test_tool").
		WithAccount("").
		WithCalendars().
		Build()

	// Only tool should be present
	if len(attrs) != 1 {
		t.Errorf("expected 1 attribute (only tool), got %d", len(attrs))
	}
}

func TestStartSpans(t *testing.T) {
	ctx, _ := newTestProvider(t)

	tests := []struct {
		name  string
		start func() (context.Context, trace.Span)
	}{
		{
			name: "generic",
			start: func() (context.Context, trace.Span) {
				c, s := StartSpan(ctx, "test-span")
				return c, s
			},
		},
		{
			name: "tool",
			start: func() (context.Context, trace.Span) {
				c, s := StartToolSpan(ctx, "calendar_list_events")
				return c, s
			},
		},
		{
			name: "google api",
			start: func() (context.Context, trace.Span) {
				c, s := StartGoogleAPISpan(ctx, ServiceCalendar, OperationBatch)
				return c, s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spanCtx, span := tt.start()
			defer span.End()

			if spanCtx == nil {
				t.Error("expected context to be non-nil")
			}
			if span == nil {
				t.Error("expected span to be non-nil")
			}
		})
	}
}

func TestSetSpanStatus(t *testing.T) {
	ctx, _ := newTestProvider(t)

	_, span := StartSpan(ctx, "test-span")
	defer span.End()

	// Should not panic
	SetSpanError(span, errors.New("test error"))
	SetSpanError(span, nil)
	SetSpanSuccess(span)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if traceID := GetTraceID(context.Background()); traceID != "" {
		t.Errorf("expected empty trace ID for context without span, got %q", traceID)
	}
}
