package livebridge

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge/o11y"
	"github.com/bakarr/livebridge/pkg/livebridge/transport"
)

// BridgeBuilder provides a fluent interface for building Bridges.
type BridgeBuilder struct {
	dialer          Dialer
	sink            NotificationSink
	invalidator     Invalidator
	logger          *zap.Logger
	observers       []EnvelopeObserver
	retryInterval   time.Duration
	stateListener   transport.StateListener
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

// Dialer is re-exported so embedding applications only need this package and
// a transport constructor.
type Dialer = transport.Dialer

// New creates a BridgeBuilder with a no-op logger and the default retry
// interval.
func New() *BridgeBuilder {
	return &BridgeBuilder{
		logger:        zap.NewNop(),
		retryInterval: transport.DefaultRetryInterval,
	}
}

// WithDialer sets the connection dialer. Required.
func (b *BridgeBuilder) WithDialer(dialer Dialer) *BridgeBuilder {
	b.dialer = dialer
	return b
}

// WithNotificationSink sets the sink receiving user-facing notifications.
// Without a sink, Notify effects are counted but discarded.
func (b *BridgeBuilder) WithNotificationSink(sink NotificationSink) *BridgeBuilder {
	b.sink = sink
	return b
}

// WithInvalidator sets the cache invalidator. Without one, Invalidate
// effects are counted but discarded.
func (b *BridgeBuilder) WithInvalidator(invalidator Invalidator) *BridgeBuilder {
	b.invalidator = invalidator
	return b
}

// WithLogger sets the logger for the Bridge and its connection.
func (b *BridgeBuilder) WithLogger(logger *zap.Logger) *BridgeBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithObserver adds a raw envelope observer. May be called multiple times;
// observers run in registration order.
func (b *BridgeBuilder) WithObserver(observer EnvelopeObserver) *BridgeBuilder {
	if observer != nil {
		b.observers = append(b.observers, observer)
	}
	return b
}

// WithRetryInterval overrides the fixed delay between reconnection attempts.
func (b *BridgeBuilder) WithRetryInterval(interval time.Duration) *BridgeBuilder {
	if interval > 0 {
		b.retryInterval = interval
	}
	return b
}

// WithStateListener sets an observer for connection state transitions.
func (b *BridgeBuilder) WithStateListener(listener transport.StateListener) *BridgeBuilder {
	b.stateListener = listener
	return b
}

// WithMetrics enables metrics collection using the provided provider.
func (b *BridgeBuilder) WithMetrics(provider o11y.MetricsProvider) *BridgeBuilder {
	b.metricsProvider = provider
	return b
}

// WithTracing enables tracing using the provided provider.
func (b *BridgeBuilder) WithTracing(provider o11y.TracingProvider) *BridgeBuilder {
	b.tracingProvider = provider
	return b
}

// IsValid checks that all required configuration is present.
func (b *BridgeBuilder) IsValid() error {
	if b.dialer == nil {
		return fmt.Errorf("dialer is required")
	}
	return nil
}

// Build creates the Bridge. The connection is not opened until Start.
func (b *BridgeBuilder) Build() (*Bridge, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	bridge := &Bridge{
		downloads:       NewDownloadTracker(),
		observers:       b.observers,
		logger:          b.logger,
		tracingProvider: b.tracingProvider,
	}

	bridge.executor = &effectExecutor{
		sink:        b.sink,
		invalidator: b.invalidator,
		logger:      b.logger,
	}

	if b.metricsProvider != nil {
		bridge.envelopeCounter = b.metricsProvider.Counter("livebridge_envelopes_total")
		bridge.decodeErrorCounter = b.metricsProvider.Counter("livebridge_decode_errors_total")
		bridge.executor.effectCounter = b.metricsProvider.Counter("livebridge_effects_total")
		bridge.executor.errorCounter = b.metricsProvider.Counter("livebridge_effect_errors_total")
	}

	reconnector, err := transport.NewReconnector().
		WithDialer(b.dialer).
		WithHandler(bridge.handleFrame).
		WithLogger(b.logger).
		WithRetryInterval(b.retryInterval).
		WithStateListener(b.stateListener).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build connection: %w", err)
	}
	bridge.reconnector = reconnector

	return bridge, nil
}
