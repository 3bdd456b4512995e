package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// DefaultDialTimeout bounds a single WebSocket handshake attempt.
const DefaultDialTimeout = 30 * time.Second

// WebSocketDialer connects to the push endpoint over WebSocket. Each text
// frame carries one event envelope.
type WebSocketDialer struct {
	url          string
	dialTimeout  time.Duration
	headers      http.Header
	authProvider AuthorizationProvider
}

// NewWebSocketDialer creates a dialer for the given ws:// or wss:// URL.
func NewWebSocketDialer(url string) *WebSocketDialer {
	return &WebSocketDialer{
		url:         url,
		dialTimeout: DefaultDialTimeout,
	}
}

// WithDialTimeout sets the timeout for establishing the connection.
func (d *WebSocketDialer) WithDialTimeout(timeout time.Duration) *WebSocketDialer {
	if timeout > 0 {
		d.dialTimeout = timeout
	}
	return d
}

// WithHeader sets a custom header sent with the WebSocket handshake.
func (d *WebSocketDialer) WithHeader(key, value string) *WebSocketDialer {
	if d.headers == nil {
		d.headers = make(http.Header)
	}
	d.headers.Set(key, value)
	return d
}

// WithAuthorization sets a static Authorization header value.
func (d *WebSocketDialer) WithAuthorization(authHeader string) *WebSocketDialer {
	d.authProvider = func(ctx context.Context) (string, error) {
		return authHeader, nil
	}
	return d
}

// WithAuthorizationProvider sets a provider called on every connection
// attempt to obtain the Authorization header.
func (d *WebSocketDialer) WithAuthorizationProvider(provider AuthorizationProvider) *WebSocketDialer {
	d.authProvider = provider
	return d
}

// Dial performs the WebSocket handshake and returns the live stream.
func (d *WebSocketDialer) Dial(ctx context.Context) (Stream, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	options := &websocket.DialOptions{}
	if len(d.headers) > 0 {
		options.HTTPHeader = d.headers.Clone()
	}

	if d.authProvider != nil {
		authValue, err := d.authProvider(dialCtx)
		if err != nil {
			return nil, fmt.Errorf("get authorization: %w", err)
		}
		if authValue != "" {
			if options.HTTPHeader == nil {
				options.HTTPHeader = make(http.Header)
			}
			options.HTTPHeader.Set("Authorization", authValue)
		}
	}

	conn, _, err := websocket.Dial(dialCtx, d.url, options)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
