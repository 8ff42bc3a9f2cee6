// Package upstream is the HTTP client for the remote chat service the proxy
// fronts. It injects credentials, bounds response reads and maps non-success
// responses to *llm.StatusError.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/logger"
	"github.com/papercomputeco/chatrelay/pkg/utils"
	"github.com/papercomputeco/chatrelay/proxy/header"
)

const (
	scopeName = "github.com/papercomputeco/chatrelay/proxy/upstream"

	// maxJSONBodyBytes bounds a JSON response body.
	maxJSONBodyBytes = 2 << 20

	// logPreviewLimit bounds body previews in debug logs.
	logPreviewLimit = 4096
)

var tracer = otel.Tracer(scopeName)

var (
	// ErrEmptyPath is returned when a request has no path.
	ErrEmptyPath = errors.New("upstream: empty path")

	// ErrUnexpectedContentType is returned when a JSON call gets another media type.
	ErrUnexpectedContentType = errors.New("upstream: unexpected content type")
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	Project     string

	// Timeout bounds a JSON call end to end and a stream until its response
	// headers arrive. Zero disables it.
	Timeout time.Duration

	Headers *header.Handler

	// Debug enables request/response logging with credentials redacted.
	Debug  bool
	Logger *slog.Logger

	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client calls the remote chat service.
type Client struct {
	baseURL     string
	accessToken string
	project     string
	timeout     time.Duration
	headers     *header.Handler
	debug       bool
	logger      *slog.Logger
	httpClient  *http.Client
}

// Request describes a single upstream call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      []byte
	RequestID string
}

// JSONResponse is a fully read JSON response.
type JSONResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// NewClient creates a new upstream Client.
func NewClient(opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	headers := opts.Headers
	if headers == nil {
		headers = header.NewHandler("", "")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		accessToken: opts.AccessToken,
		project:     opts.Project,
		timeout:     opts.Timeout,
		headers:     headers,
		debug:       opts.Debug,
		logger:      log,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(base,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return operation + " " + r.URL.Path
				}),
			),
		},
	}
}

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

// DoJSON performs a JSON call and reads at most 2 MiB of the response.
// A non-success status returns the response alongside a *llm.StatusError.
// A success with a non-JSON content type returns ErrUnexpectedContentType.
func (c *Client) DoJSON(ctx context.Context, r Request) (*JSONResponse, error) {
	ctx, span := tracer.Start(ctx, "upstream.json", trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("upstream.path", r.Path),
		attribute.String("request_id", r.RequestID),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, r, false)
	if err != nil {
		return nil, recordError(span, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("calling upstream: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBodyBytes))
	if err != nil {
		return nil, recordError(span, fmt.Errorf("reading upstream response: %w", err))
	}
	c.logResponse(req, resp, body)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	out := &JSONResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, recordError(span, &llm.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       utils.Prefix(string(body), llm.ErrorPreviewLimit),
		})
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isJSON(ct) {
		return out, recordError(span, fmt.Errorf("%w: %s", ErrUnexpectedContentType, ct))
	}

	return out, nil
}

// OpenStream starts an event-stream call and returns the response with its
// body unread. The caller owns the body and must close it. A non-success
// status is returned as a *llm.StatusError with the body already closed.
func (c *Client) OpenStream(ctx context.Context, r Request) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, "upstream.stream", trace.WithAttributes(
		attribute.String("upstream.path", r.Path),
		attribute.String("request_id", r.RequestID),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, cancel)
	}

	if r.Method == "" {
		r.Method = http.MethodPost
	}
	req, err := c.newRequest(ctx, r, true)
	if err != nil {
		cancel()
		return nil, recordError(span, err)
	}

	resp, err := c.httpClient.Do(req)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		cancel()
		return nil, recordError(span, fmt.Errorf("calling upstream: %w", err))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := llm.CheckResponse(resp); err != nil {
		cancel()
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			c.logResponse(req, resp, []byte(statusErr.Body))
		}
		return nil, recordError(span, err)
	}
	c.logResponse(req, resp, nil)

	if !HasBody(resp) {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		resp.Body = http.NoBody
		cancel()
		return resp, nil
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, r Request, stream bool) (*http.Request, error) {
	u, err := c.URL(r.Path, r.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	c.headers.SetUpstreamRequestHeaders(req, header.Upstream{
		AccessToken: c.accessToken,
		Project:     c.project,
		RequestID:   r.RequestID,
		Stream:      stream,
	})
	req.Header.Set("User-Agent", utils.UserAgent())
	c.logRequest(req)

	return req, nil
}

func (c *Client) logRequest(req *http.Request) {
	if !c.debug {
		return
	}

	c.logger.Debug("upstream.request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", c.headers.Redact(req.Header),
	)
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, body []byte) {
	if !c.debug {
		return
	}

	attrs := []any{
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
	}
	if len(body) > 0 {
		attrs = append(attrs, "body_preview", utils.Prefix(string(body), logPreviewLimit))
	}
	c.logger.Debug("upstream.response", attrs...)
}

// HasBody reports whether resp carries a body to relay. A nil body,
// http.NoBody and a declared zero length all count as absent.
func HasBody(resp *http.Response) bool {
	return resp.Body != nil && resp.Body != http.NoBody && resp.ContentLength != 0
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
