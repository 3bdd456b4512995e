package livebridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
	"github.com/bakarr/livebridge/pkg/livebridge/o11y"
)

// Invalidator evicts cache entries by hierarchical key. cache.Cache is the
// usual implementation; UIs with their own query cache can plug in anything.
type Invalidator interface {
	Invalidate(ctx context.Context, key events.CacheKey) error
}

// FuncInvalidator adapts a plain function to the Invalidator interface.
type FuncInvalidator func(ctx context.Context, key events.CacheKey) error

func (f FuncInvalidator) Invalidate(ctx context.Context, key events.CacheKey) error {
	return f(ctx, key)
}

// effectExecutor applies the effects of one envelope to the configured sink
// and invalidator. Effects run in order; a failing effect is logged and
// counted, and the remaining effects still run.
type effectExecutor struct {
	sink        NotificationSink
	invalidator Invalidator
	logger      *zap.Logger

	effectCounter o11y.Counter
	errorCounter  o11y.Counter
}

func (e *effectExecutor) apply(ctx context.Context, kind string, effects []events.Effect) {
	for _, effect := range effects {
		switch eff := effect.(type) {
		case events.Notify:
			e.count(ctx, "notify", kind)
			if e.sink == nil {
				continue
			}
			if err := e.sink.Notify(ctx, eff.Level, eff.Message); err != nil {
				e.fail(ctx, kind, err,
					zap.String("notifyLevel", string(eff.Level)),
					zap.String("message", eff.Message))
			}

		case events.Invalidate:
			e.count(ctx, "invalidate", kind)
			if e.invalidator == nil {
				continue
			}
			if err := e.invalidator.Invalidate(ctx, eff.Key); err != nil {
				e.fail(ctx, kind, err, zap.String("key", eff.Key.Topic()))
			}
		}
	}
}

func (e *effectExecutor) count(ctx context.Context, effectType, kind string) {
	if e.effectCounter != nil {
		e.effectCounter.Add(ctx, 1,
			o11y.Label{Key: "effect", Value: effectType},
			o11y.Label{Key: "kind", Value: kind})
	}
}

func (e *effectExecutor) fail(ctx context.Context, kind string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("kind", kind), zap.Error(err))
	e.logger.Warn("Effect failed", fields...)
	if e.errorCounter != nil {
		e.errorCounter.Add(ctx, 1, o11y.Label{Key: "kind", Value: kind})
	}
}
