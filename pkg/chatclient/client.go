// Package chatclient is the client side of the chatrelay pipeline. It calls
// the proxy routes, decodes the event stream and assembles assistant replies
// from the extracted deltas.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/delta"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/logger"
	"github.com/papercomputeco/chatrelay/pkg/sse"
	"github.com/papercomputeco/chatrelay/pkg/utils"
)

// maxJSONResponseBytes bounds a JSON response read by the client.
const maxJSONResponseBytes = 2 << 20

// ErrEmptyMessage is returned when a message has no text after trimming.
var ErrEmptyMessage = errors.New("chatclient: empty message")

// Client talks to a chatrelay proxy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Streams are long lived,
// so the client should not set an overall Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for per-event debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for the proxy at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListModels returns the model names offered by the proxy, normalized from
// any of the supported list shapes.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	body, err := c.getJSON(ctx, "/v1/models")
	if err != nil {
		return nil, err
	}

	models, err := llm.NormalizeModels(body)
	if err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}
	return models, nil
}

// Chat sends a non-streaming request and returns the raw JSON reply.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (json.RawMessage, error) {
	resp, err := c.post(ctx, "/v1/chat", req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON response: %s", utils.Prefix(string(body), 500))
	}
	return body, nil
}

// StreamChat sends a streaming request and calls onDelta for every piece of
// text extracted from the stream, in order. It returns the full text seen so
// far. When ctx is cancelled the partial text is returned with an error
// matching sse.ErrAborted.
func (c *Client) StreamChat(ctx context.Context, req *llm.ChatRequest, onDelta func(string)) (string, error) {
	resp, err := c.post(ctx, "/v1/chat/stream", req, true)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", sse.ErrAborted, ctx.Err())
		}
		return "", err
	}

	var text strings.Builder
	dec := sse.NewDecoder(resp.Body)
	err = dec.Run(ctx, func(ev sse.Event) error {
		c.logger.Debug("sse.event",
			"data_preview", utils.Prefix(ev.Data, 200),
		)

		piece, ok := delta.Extract(ev.Data)
		if !ok {
			return nil
		}
		text.WriteString(piece)
		if onDelta != nil {
			onDelta(piece)
		}
		return nil
	})

	return text.String(), err
}

func (c *Client) getJSON(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return body, nil
}

// post sends req as JSON and returns a successful response with its body
// unread. Non-success responses become *llm.StatusError.
func (c *Client) post(ctx context.Context, path string, req *llm.ChatRequest, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", req.URL.Path, err)
	}

	if err := llm.CheckResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
