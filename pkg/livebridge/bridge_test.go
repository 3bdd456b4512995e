package livebridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
	"github.com/bakarr/livebridge/pkg/livebridge/transport"
)

// scriptedStream feeds a fixed set of frames, then blocks until closed.
type scriptedStream struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedStream(frames ...string) *scriptedStream {
	s := &scriptedStream{
		frames: make(chan []byte, len(frames)+16),
		closed: make(chan struct{}),
	}
	for _, frame := range frames {
		s.frames <- []byte(frame)
	}
	return s
}

func (s *scriptedStream) push(frame string) { s.frames <- []byte(frame) }

func (s *scriptedStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type scriptedDialer struct {
	stream *scriptedStream
}

func (d *scriptedDialer) Dial(ctx context.Context) (transport.Stream, error) {
	return d.stream, nil
}

// recordingSink captures notifications, optionally failing every call.
type recordingSink struct {
	mu       sync.Mutex
	messages []string
	levels   []events.Level
	err      error
}

func (s *recordingSink) Notify(ctx context.Context, level events.Level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	s.levels = append(s.levels, level)
	return s.err
}

func (s *recordingSink) getMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]string, len(s.messages))
	copy(result, s.messages)
	return result
}

func (s *recordingSink) getLevels() []events.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]events.Level, len(s.levels))
	copy(result, s.levels)
	return result
}

// recordingInvalidator captures invalidated key topics.
type recordingInvalidator struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (i *recordingInvalidator) Invalidate(ctx context.Context, key events.CacheKey) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.topics = append(i.topics, key.Topic())
	return i.err
}

func (i *recordingInvalidator) getTopics() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]string, len(i.topics))
	copy(result, i.topics)
	return result
}

func buildBridge(t *testing.T, stream *scriptedStream, sink *recordingSink, invalidator *recordingInvalidator, observers ...EnvelopeObserver) *Bridge {
	t.Helper()

	builder := New().
		WithDialer(&scriptedDialer{stream: stream}).
		WithNotificationSink(sink).
		WithInvalidator(invalidator).
		WithLogger(zaptest.NewLogger(t))
	for _, observer := range observers {
		builder = builder.WithObserver(observer)
	}

	bridge, err := builder.Build()
	require.NoError(t, err)
	return bridge
}

func TestBridgeAppliesEffectsInOrder(t *testing.T) {
	stream := newScriptedStream(`{"type":"DownloadFinished","payload":{"title":"X","anime_id":42}}`)
	sink := &recordingSink{}
	invalidator := &recordingInvalidator{}
	bridge := buildBridge(t, stream, sink, invalidator)
	defer bridge.Stop()

	require.NoError(t, bridge.Start(context.Background()))

	require.Eventually(t, func() bool { return len(invalidator.getTopics()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Download finished: X"}, sink.getMessages())
	assert.Equal(t, []events.Level{events.LevelSuccess}, sink.getLevels())
	assert.Equal(t, []string{"anime", "anime/42"}, invalidator.getTopics())
}

func TestBridgeSurvivesDecodeErrors(t *testing.T) {
	stream := newScriptedStream(
		"not json at all",
		`{"payload":{}}`,
		`{"type":"ScanStarted"}`,
	)
	sink := &recordingSink{}
	bridge := buildBridge(t, stream, sink, &recordingInvalidator{})
	defer bridge.Stop()

	require.NoError(t, bridge.Start(context.Background()))

	// The bad frames are dropped; the good one behind them still lands.
	require.Eventually(t, func() bool { return len(sink.getMessages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Scan started"}, sink.getMessages())
	assert.Equal(t, transport.StateOpen, bridge.ConnectionState())
}

func TestBridgeIsolatesEffectFailures(t *testing.T) {
	stream := newScriptedStream(`{"type":"DownloadFinished","payload":{"title":"Y","anime_id":7}}`)
	sink := &recordingSink{err: errors.New("toast renderer gone")}
	invalidator := &recordingInvalidator{}
	bridge := buildBridge(t, stream, sink, invalidator)
	defer bridge.Stop()

	require.NoError(t, bridge.Start(context.Background()))

	// The failing sink does not stop the invalidations of the same envelope.
	require.Eventually(t, func() bool { return len(invalidator.getTopics()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"anime", "anime/7"}, invalidator.getTopics())
}

func TestBridgeInvalidatorFailureStillNotifies(t *testing.T) {
	stream := newScriptedStream(
		`{"type":"RefreshFinished","payload":{"title":"Z","anime_id":3}}`,
		`{"type":"Info","payload":{"message":"still alive"}}`,
	)
	sink := &recordingSink{}
	invalidator := &recordingInvalidator{err: errors.New("cache offline")}
	bridge := buildBridge(t, stream, sink, invalidator)
	defer bridge.Stop()

	require.NoError(t, bridge.Start(context.Background()))

	require.Eventually(t, func() bool { return len(sink.getMessages()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Refresh finished: Z", "still alive"}, sink.getMessages())
	assert.Len(t, invalidator.getTopics(), 3)
}

func TestBridgeObserversSeeEveryEnvelope(t *testing.T) {
	stream := newScriptedStream(
		`{"type":"ScanProgress","payload":{"done":1,"total":10}}`,
		`{"type":"SomethingNew","payload":{"x":1}}`,
		`{"type":"ScanFinished"}`,
	)

	var mu sync.Mutex
	var seen []string
	observer := func(ctx context.Context, env events.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, env.Kind)
	}

	bridge := buildBridge(t, stream, &recordingSink{}, &recordingInvalidator{}, observer)
	defer bridge.Stop()

	require.NoError(t, bridge.Start(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Effect-free kinds (progress ticks, unknown kinds) still reach observers.
	assert.Equal(t, []string{"ScanProgress", "SomethingNew", "ScanFinished"}, seen)
}

func TestBridgeTracksDownloadProgress(t *testing.T) {
	stream := newScriptedStream(`{"type":"DownloadProgress","payload":{"downloads":[{"title":"A","anime_id":1,"progress":0.5}]}}`)
	bridge := buildBridge(t, stream, &recordingSink{}, &recordingInvalidator{})
	defer bridge.Stop()

	require.NoError(t, bridge.Start(context.Background()))

	require.Eventually(t, func() bool { return bridge.Downloads().Snapshot() != nil }, time.Second, time.Millisecond)

	snapshot := bridge.Downloads().Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "A", snapshot[0].Title)
	assert.Equal(t, int64(1), snapshot[0].AnimeID)
	assert.Equal(t, 0.5, snapshot[0].Progress)
}

func TestBridgeStopIsTerminal(t *testing.T) {
	stream := newScriptedStream()
	sink := &recordingSink{}
	bridge := buildBridge(t, stream, sink, &recordingInvalidator{})

	require.NoError(t, bridge.Start(context.Background()))
	require.Eventually(t, func() bool {
		return bridge.ConnectionState() == transport.StateOpen
	}, time.Second, time.Millisecond)

	require.NoError(t, bridge.Stop())
	require.NoError(t, bridge.Stop())

	stream.push(`{"type":"ScanStarted"}`)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.getMessages())

	assert.ErrorIs(t, bridge.Start(context.Background()), transport.ErrDisposed)
}

func TestBridgeBuilderValidation(t *testing.T) {
	t.Run("dialer is required", func(t *testing.T) {
		_, err := New().Build()
		assert.Error(t, err)
	})

	t.Run("sink and invalidator are optional", func(t *testing.T) {
		bridge, err := New().
			WithDialer(&scriptedDialer{stream: newScriptedStream()}).
			Build()
		require.NoError(t, err)
		assert.NotNil(t, bridge.Downloads())
	})
}

func TestFuncAdapters(t *testing.T) {
	var gotLevel events.Level
	sink := FuncSink(func(ctx context.Context, level events.Level, message string) error {
		gotLevel = level
		return nil
	})
	require.NoError(t, sink.Notify(context.Background(), events.LevelWarning, "careful"))
	assert.Equal(t, events.LevelWarning, gotLevel)

	var gotTopic string
	invalidator := FuncInvalidator(func(ctx context.Context, key events.CacheKey) error {
		gotTopic = key.Topic()
		return nil
	})
	require.NoError(t, invalidator.Invalidate(context.Background(), events.AnimeKey(9)))
	assert.Equal(t, "anime/9", gotTopic)
}

func TestMinLevelSink(t *testing.T) {
	inner := &recordingSink{}
	sink := NewMinLevelSink(inner, events.LevelWarning)

	ctx := context.Background()
	require.NoError(t, sink.Notify(ctx, events.LevelInfo, "quiet"))
	require.NoError(t, sink.Notify(ctx, events.LevelSuccess, "quiet too"))
	require.NoError(t, sink.Notify(ctx, events.LevelWarning, "heads up"))
	require.NoError(t, sink.Notify(ctx, events.LevelError, "broken"))
	require.NoError(t, sink.Notify(ctx, events.Level("custom"), "passes through"))

	assert.Equal(t, []string{"heads up", "broken", "passes through"}, inner.getMessages())
}

func TestLoggingSink(t *testing.T) {
	sink := NewLoggingSink(zaptest.NewLogger(t))
	for _, level := range []events.Level{events.LevelInfo, events.LevelSuccess, events.LevelWarning, events.LevelError} {
		assert.NoError(t, sink.Notify(context.Background(), level, "hello"))
	}

	assert.NotPanics(t, func() {
		_ = NewLoggingSink(nil).Notify(context.Background(), events.LevelInfo, "nil logger")
	})
}
