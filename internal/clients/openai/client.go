package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"call-relay/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	defaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	defaultRealtimeModel = "gpt-4o-realtime-preview-2024-10-01"
	defaultDialTimeout   = 10 * time.Second
)

// Option configures a RealtimeClient.
type Option func(*RealtimeClient)

// WithURL overrides the realtime endpoint. Tests point it at httptest servers.
func WithURL(u string) Option {
	return func(c *RealtimeClient) { c.url = u }
}

// WithModel sets the realtime model query parameter.
func WithModel(model string) Option {
	return func(c *RealtimeClient) { c.model = model }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *RealtimeClient) { c.dialer = d }
}

// RealtimeClient opens credentialed sockets to the OpenAI Realtime API.
// It holds no per-call state and is shared by all relays.
type RealtimeClient struct {
	apiKey string
	url    string
	model  string
	dialer *websocket.Dialer
	logger *observability.Logger
}

func NewRealtimeClient(apiKey string, logger *observability.Logger, opts ...Option) (*RealtimeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	c := &RealtimeClient{
		apiKey: apiKey,
		url:    defaultRealtimeURL,
		model:  defaultRealtimeModel,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultDialTimeout,
		},
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Endpoint returns the URL dialled for new sessions.
func (c *RealtimeClient) Endpoint() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid realtime url %q: %w", c.url, err)
	}
	if c.model != "" {
		q := u.Query()
		q.Set("model", c.model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial opens a realtime socket. The handshake is not sent; callers schedule
// it with RealtimeConn.ScheduleHandshake.
func (c *RealtimeClient) Dial(ctx context.Context) (*RealtimeConn, error) {
	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to OpenAI realtime endpoint (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to OpenAI realtime endpoint: %w", err)
	}
	c.logger.Info(ctx, "Connected to the OpenAI Realtime API")

	return NewRealtimeConn(conn, c.logger), nil
}
