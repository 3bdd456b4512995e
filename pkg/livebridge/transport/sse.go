package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEDialer connects to a text/event-stream endpoint. Each SSE event's data
// lines form one frame; event, id and retry fields are ignored because the
// Bakarr protocol carries everything in the data payload.
type SSEDialer struct {
	url          string
	client       *http.Client
	headers      http.Header
	authProvider AuthorizationProvider
}

// NewSSEDialer creates a dialer for the given endpoint URL.
func NewSSEDialer(url string) *SSEDialer {
	return &SSEDialer{
		url:    url,
		client: http.DefaultClient,
	}
}

// WithHTTPClient sets the HTTP client used to open the stream.
func (d *SSEDialer) WithHTTPClient(client *http.Client) *SSEDialer {
	if client != nil {
		d.client = client
	}
	return d
}

// WithHeader sets a custom header sent with the stream request.
func (d *SSEDialer) WithHeader(key, value string) *SSEDialer {
	if d.headers == nil {
		d.headers = make(http.Header)
	}
	d.headers.Set(key, value)
	return d
}

// WithAuthorization sets a static Authorization header value.
func (d *SSEDialer) WithAuthorization(authHeader string) *SSEDialer {
	d.authProvider = func(ctx context.Context) (string, error) {
		return authHeader, nil
	}
	return d
}

// WithAuthorizationProvider sets a provider called on every connection
// attempt to obtain the Authorization header.
func (d *SSEDialer) WithAuthorizationProvider(provider AuthorizationProvider) *SSEDialer {
	d.authProvider = provider
	return d
}

// Dial opens the event stream. The returned Stream lives until the request
// context is cancelled, the server closes, or Close is called.
func (d *SSEDialer) Dial(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, values := range d.headers {
		req.Header[key] = values
	}

	if d.authProvider != nil {
		authValue, err := d.authProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("get authorization: %w", err)
		}
		if authValue != "" {
			req.Header.Set("Authorization", authValue)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned %s", resp.Status)
	}

	return &sseStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Read returns the next event's data payload. Multiple data lines within one
// event are joined with newlines per the SSE format.
func (s *sseStream) Read(ctx context.Context) ([]byte, error) {
	var data [][]byte

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// Blank line terminates an event; separators between events
			// without data are keep-alive noise.
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive line.
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			value = strings.TrimPrefix(value, " ")
			data = append(data, []byte(value))
		default:
			// event:, id:, retry: and anything else the server may add.
		}
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
