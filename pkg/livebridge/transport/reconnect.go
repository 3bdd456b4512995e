package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetryInterval is the fixed delay before a reconnection attempt.
const DefaultRetryInterval = 5 * time.Second

// ErrDisposed is returned by Start after Stop has been called; a disposed
// Reconnector never reconnects.
var ErrDisposed = errors.New("reconnector is disposed")

// Reconnector owns at most one live Stream to the push endpoint and
// reestablishes it after any transport failure. Frames are delivered to the
// handler synchronously, one at a time, in arrival order. Connection errors
// are logged and self-healed; they are never surfaced to the caller.
type Reconnector struct {
	dialer        Dialer
	handler       FrameHandler
	logger        *zap.Logger
	retryInterval time.Duration
	stateListener StateListener

	mu      sync.Mutex
	state   State
	stream  Stream
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// Start begins connecting. Calling Start on an already started Reconnector
// is a no-op; after Stop it returns ErrDisposed.
func (r *Reconnector) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateDisposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.setStateLocked(StateConnecting)
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.connect()
	}()
	return nil
}

// Stop disposes the Reconnector: any pending retry timer is cancelled, any
// live stream is closed, and no handler callbacks or connection attempts
// happen after Stop returns. Stop waits for an in-flight handler call to
// finish, so it must not be called from the frame handler itself. Stop is
// idempotent and safe in any state.
func (r *Reconnector) Stop() error {
	r.mu.Lock()
	if r.state == StateDisposed {
		r.mu.Unlock()
		return nil
	}
	r.setStateLocked(StateDisposed)
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	stream := r.stream
	r.stream = nil
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Close()
	}
	r.wg.Wait()

	r.logger.Info("Push channel disposed")
	return nil
}

// State returns the current connection state.
func (r *Reconnector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconnector) connect() {
	r.mu.Lock()
	if r.state == StateDisposed {
		r.mu.Unlock()
		return
	}
	// Tear down any previous live stream before a new attempt so frames are
	// never delivered twice.
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
	ctx := r.ctx
	r.mu.Unlock()

	stream, err := r.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("Push channel connection failed", zap.Error(err))
		r.scheduleRetry()
		return
	}

	r.mu.Lock()
	if r.state == StateDisposed {
		r.mu.Unlock()
		stream.Close()
		return
	}
	r.stream = stream
	r.setStateLocked(StateOpen)
	r.mu.Unlock()

	r.logger.Info("Push channel connected")
	r.readLoop(ctx, stream)
}

func (r *Reconnector) readLoop(ctx context.Context, stream Stream) {
	for {
		frame, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("Push channel read failed", zap.Error(err))
			r.streamFailed(stream)
			return
		}

		if ctx.Err() != nil {
			return
		}
		r.handler(ctx, frame)
	}
}

// streamFailed tears down the live stream and arms the retry path. Errors
// from a stream that is no longer current are ignored so a stale read loop
// can't schedule a second reconnect.
func (r *Reconnector) streamFailed(stream Stream) {
	r.mu.Lock()
	if r.state == StateDisposed || r.stream != stream {
		r.mu.Unlock()
		return
	}
	stream.Close()
	r.stream = nil
	r.mu.Unlock()

	r.scheduleRetry()
}

// scheduleRetry arms the retry timer. At most one timer is ever pending: a
// second failure while a retry is already scheduled is a no-op.
func (r *Reconnector) scheduleRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDisposed || r.timer != nil {
		return
	}
	r.setStateLocked(StateRetryWait)
	r.timer = time.AfterFunc(r.retryInterval, r.retryNow)
}

func (r *Reconnector) retryNow() {
	r.mu.Lock()
	r.timer = nil
	if r.state == StateDisposed {
		r.mu.Unlock()
		return
	}
	r.setStateLocked(StateConnecting)
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.connect()
	}()
}

func (r *Reconnector) setStateLocked(next State) {
	old := r.state
	r.state = next
	if r.stateListener != nil && old != next {
		r.stateListener(old, next)
	}
}

// ReconnectorBuilder provides a fluent interface for building Reconnectors.
type ReconnectorBuilder struct {
	dialer        Dialer
	handler       FrameHandler
	logger        *zap.Logger
	retryInterval time.Duration
	stateListener StateListener
}

func NewReconnector() *ReconnectorBuilder {
	return &ReconnectorBuilder{
		logger:        zap.NewNop(),
		retryInterval: DefaultRetryInterval,
	}
}

// WithDialer sets the dialer used for every connection attempt.
func (b *ReconnectorBuilder) WithDialer(dialer Dialer) *ReconnectorBuilder {
	b.dialer = dialer
	return b
}

// WithHandler sets the frame handler.
func (b *ReconnectorBuilder) WithHandler(handler FrameHandler) *ReconnectorBuilder {
	b.handler = handler
	return b
}

// WithLogger sets the logger for the Reconnector.
func (b *ReconnectorBuilder) WithLogger(logger *zap.Logger) *ReconnectorBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithRetryInterval sets the fixed delay between reconnection attempts.
func (b *ReconnectorBuilder) WithRetryInterval(interval time.Duration) *ReconnectorBuilder {
	if interval > 0 {
		b.retryInterval = interval
	}
	return b
}

// WithStateListener sets an observer for state transitions.
func (b *ReconnectorBuilder) WithStateListener(listener StateListener) *ReconnectorBuilder {
	b.stateListener = listener
	return b
}

// IsValid checks that all required configuration is present.
func (b *ReconnectorBuilder) IsValid() error {
	if b.dialer == nil {
		return fmt.Errorf("dialer is required")
	}
	if b.handler == nil {
		return fmt.Errorf("handler is required")
	}
	return nil
}

// Build creates the Reconnector in the idle state.
func (b *ReconnectorBuilder) Build() (*Reconnector, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Reconnector{
		dialer:        b.dialer,
		handler:       b.handler,
		logger:        b.logger,
		retryInterval: b.retryInterval,
		stateListener: b.stateListener,
		state:         StateIdle,
	}, nil
}
