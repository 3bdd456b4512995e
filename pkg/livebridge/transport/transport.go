// Package transport maintains the client side of the Bakarr push channel:
// dialers for the SSE and WebSocket endpoints, and a Reconnector that keeps
// exactly one logical subscription alive across failures.
package transport

import "context"

// Stream is one live connection to the push endpoint. Read blocks until the
// next frame's text payload is available.
type Stream interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer establishes a new Stream. Implementations: NewSSEDialer,
// NewWebSocketDialer.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// AuthorizationProvider returns an Authorization header value ("Bearer ...")
// for a connection attempt, or an error if one cannot be obtained.
type AuthorizationProvider func(ctx context.Context) (string, error)

// FrameHandler receives each frame's raw text, one frame at a time, in
// arrival order.
type FrameHandler func(ctx context.Context, frame []byte)

// State is the Reconnector's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateRetryWait
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetryWait:
		return "retry-wait"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// StateListener observes state transitions. Listeners are called with the
// Reconnector's lock held and must not call back into it.
type StateListener func(old, new State)
