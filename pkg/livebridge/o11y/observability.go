// Package o11y holds the small provider interfaces the bridge and cache use
// for metrics and tracing. Providers are optional; a nil provider disables
// instrumentation entirely.
package o11y

import "context"

// MetricsProvider creates instruments by name. Implementations exist for
// OpenTelemetry (o11y/otel) and Prometheus (o11y/prom).
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider starts spans around units of work.
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

// Histogram records a distribution of values.
type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

// Span is one traced unit of work.
type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label is a key-value pair attached to metrics and spans.
type Label struct {
	Key   string
	Value string
}

type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)
