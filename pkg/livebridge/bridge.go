// Package livebridge keeps a UI-facing query cache coherent with a Bakarr
// server by consuming its push event stream. A Bridge owns one reconnecting
// connection, decodes event envelopes, and applies their effects: user
// notifications through a NotificationSink and cache evictions through an
// Invalidator. Raw envelopes can additionally be observed for custom
// pipelines such as progress widgets.
//
// Construct a Bridge explicitly at application scope and share it; one
// connection serves every consumer:
//
//	bridge, err := livebridge.New().
//		WithDialer(transport.NewSSEDialer(url)).
//		WithNotificationSink(sink).
//		WithInvalidator(queryCache).
//		Build()
package livebridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
	"github.com/bakarr/livebridge/pkg/livebridge/o11y"
	"github.com/bakarr/livebridge/pkg/livebridge/transport"
)

// EnvelopeObserver receives every successfully decoded envelope after its
// effects have been applied, including kinds that produce no effects.
// Observers run synchronously on the frame pipeline and should return
// quickly.
type EnvelopeObserver func(ctx context.Context, env events.Envelope)

// Bridge is the live-event bridge. Frames are processed synchronously, one
// at a time, in arrival order, so observers and cache state never see
// reordered events.
type Bridge struct {
	reconnector *transport.Reconnector
	executor    *effectExecutor
	downloads   *DownloadTracker
	observers   []EnvelopeObserver
	logger      *zap.Logger

	tracingProvider o11y.TracingProvider

	envelopeCounter    o11y.Counter
	decodeErrorCounter o11y.Counter
}

// Start opens the connection and begins processing events. Calling Start on
// a running Bridge is a no-op; after Stop it returns transport.ErrDisposed.
func (b *Bridge) Start(ctx context.Context) error {
	return b.reconnector.Start(ctx)
}

// Stop disconnects and disposes the Bridge. Idempotent and terminal: no
// notifications, invalidations, or observer calls happen after Stop returns.
func (b *Bridge) Stop() error {
	return b.reconnector.Stop()
}

// ConnectionState reports the state of the underlying connection.
func (b *Bridge) ConnectionState() transport.State {
	return b.reconnector.State()
}

// Downloads returns the tracker holding the latest download-progress
// snapshot.
func (b *Bridge) Downloads() *DownloadTracker {
	return b.downloads
}

// handleFrame is the frame pipeline: decode, dispatch, apply, observe. A
// frame that fails to decode is logged and dropped; the connection is
// unaffected.
func (b *Bridge) handleFrame(ctx context.Context, frame []byte) {
	if b.tracingProvider != nil {
		var span o11y.Span
		ctx, span = b.tracingProvider.StartSpan(ctx, "livebridge.handleFrame")
		defer span.End()
	}

	env, err := events.Decode(frame)
	if err != nil {
		b.logger.Warn("Dropping undecodable event frame", zap.Error(err))
		if b.decodeErrorCounter != nil {
			b.decodeErrorCounter.Add(ctx, 1)
		}
		return
	}

	if b.envelopeCounter != nil {
		b.envelopeCounter.Add(ctx, 1, o11y.Label{Key: "kind", Value: env.Kind})
	}

	effects := events.EffectsFor(env)
	if len(effects) == 0 && !events.IsKnownKind(env.Kind) {
		b.logger.Debug("Unhandled event kind", zap.String("kind", env.Kind))
	}

	b.executor.apply(ctx, env.Kind, effects)

	if env.Kind == events.KindDownloadProgress {
		if progress, ok := env.Payload.(*events.DownloadProgressPayload); ok {
			b.downloads.update(progress.Downloads)
		}
	}

	for _, observer := range b.observers {
		observer(ctx, env)
	}
}
