// Package proxy provides the chatrelay HTTP server. It validates chat requests,
// forwards them to the remote chat service with credentials attached, and relays
// the upstream event stream to the client byte for byte.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	chatlogger "github.com/papercomputeco/chatrelay/pkg/logger"
	"github.com/papercomputeco/chatrelay/proxy/header"
	"github.com/papercomputeco/chatrelay/proxy/upstream"
	"github.com/papercomputeco/chatrelay/proxy/worker"
)

const (
	requestIDKey = "requestid"

	chatPath = "/chat/agent"
)

// Proxy is the chatrelay server. Every chat request is validated before any
// upstream call; stream sessions are reported asynchronously via its worker pool.
type Proxy struct {
	config        Config
	workerPool    *worker.Pool
	logger        *slog.Logger
	upstream      *upstream.Client
	server        *fiber.App
	headerHandler *header.Handler
	metrics       *relayMetrics

	// baseCtx parents every relay session so Close can cancel them.
	baseCtx  context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Proxy.
func New(config Config, logger *slog.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if _, err := url.Parse(config.UpstreamURL); err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	if logger == nil {
		logger = chatlogger.Nop()
	}

	publisher := config.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	metrics, err := newRelayMetrics()
	if err != nil {
		wp.Close()
		return nil, fmt.Errorf("could not create relay metrics: %w", err)
	}

	headerHandler := header.NewHandler(config.TokenHeader, config.ProjectHeader)

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	ctx, cancel := context.WithCancel(context.Background())

	p := &Proxy{
		config:        config,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: headerHandler,
		metrics:       metrics,
		baseCtx:       ctx,
		cancel:        cancel,
		upstream: upstream.NewClient(upstream.Options{
			BaseURL:     config.UpstreamURL,
			AccessToken: config.AccessToken,
			Project:     config.Project,
			Timeout:     config.UpstreamTimeout,
			Headers:     headerHandler,
			Debug:       config.DebugUpstream,
			Logger:      logger,
		}),
	}

	app.Use(requestid.New(requestid.Config{
		Header:     header.RequestIDHeader,
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))

	if config.DebugHTTP {
		app.Use(p.debugHTTP)
	}

	app.Get("/health", p.handleHealth)

	v1 := app.Group("/v1")
	v1.Get("/models", p.handleModels)
	v1.Get("/assistants/:assistantId/users", p.handleAssistantUsers)
	v1.Post("/chat", p.handleChat)
	v1.Post("/chat/stream", p.handleChatStream)

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listener(listener)
}

// Close cancels in-flight relay sessions, shuts the server down and waits
// for the worker pool to drain.
func (p *Proxy) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.closeErr = p.server.Shutdown()
		p.sessions.Wait()
		p.workerPool.Close()
	})
	return p.closeErr
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func (p *Proxy) handleModels(c *fiber.Ctx) error {
	return p.passthroughJSON(c, upstream.Request{
		Method: http.MethodGet,
		Path:   "/models",
	})
}

func (p *Proxy) handleAssistantUsers(c *fiber.Ctx) error {
	rid := requestID(c)

	assistantID, err := url.PathUnescape(c.Params("assistantId"))
	if err != nil || strings.TrimSpace(assistantID) == "" {
		return p.invalidRequest(c, rid, &llm.ValidationError{
			Fields: []llm.FieldError{{Field: "assistantId", Message: "missing assistantId"}},
		})
	}

	return p.passthroughJSON(c, upstream.Request{
		Method: http.MethodGet,
		Path:   "/assistants/" + url.PathEscape(assistantID) + "/users",
	})
}

func (p *Proxy) handleChat(c *fiber.Ctx) error {
	rid := requestID(c)

	req, err := llm.ParseChatRequest(c.Body())
	if err != nil {
		return p.invalidRequest(c, rid, err)
	}

	body, err := req.UpstreamBody(false)
	if err != nil {
		return p.internalError(c, rid, err)
	}

	return p.passthroughJSON(c, upstream.Request{
		Method: http.MethodPost,
		Path:   chatPath,
		Body:   body,
	})
}

// passthroughJSON forwards a JSON call and returns the upstream body with its
// original status. Any upstream failure becomes a 502.
func (p *Proxy) passthroughJSON(c *fiber.Ctx, r upstream.Request) error {
	rid := requestID(c)
	r.RequestID = rid

	// Close and server shutdown both cancel the call.
	ctx, cancel := context.WithCancel(p.baseCtx)
	defer cancel()
	stop := context.AfterFunc(c.Context(), cancel)
	defer stop()

	resp, err := p.upstream.DoJSON(ctx, r)
	if err != nil {
		return p.upstreamError(c, rid, err)
	}

	p.headerHandler.SetClientResponseHeaders(c, &http.Response{Header: resp.Header})
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Status(resp.StatusCode).Send(resp.Body)
}

func (p *Proxy) invalidRequest(c *fiber.Ctx, rid string, err error) error {
	out := llm.ErrorResponse{
		Error:     llm.ErrCodeInvalidRequest,
		Message:   err.Error(),
		RequestID: rid,
	}

	var verr *llm.ValidationError
	if errors.As(err, &verr) {
		out.Message = verr.Message()
		out.Details = verr.Fields
	}

	p.logger.Debug("rejected invalid request",
		"request_id", rid,
		"path", c.Path(),
		"error", err,
	)
	return c.Status(fiber.StatusBadRequest).JSON(out)
}

func (p *Proxy) upstreamError(c *fiber.Ctx, rid string, err error) error {
	p.logger.Error("upstream request failed",
		"request_id", rid,
		"path", c.Path(),
		"error", err,
	)
	return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{
		Error:     llm.ErrCodeUpstream,
		Message:   upstreamMessage(err),
		RequestID: rid,
	})
}

func (p *Proxy) internalError(c *fiber.Ctx, rid string, err error) error {
	p.logger.Error("internal error", "request_id", rid, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
		Error:     llm.ErrCodeInternal,
		RequestID: rid,
	})
}

// upstreamMessage renders a failed upstream call for the client. A status
// failure names the status; other failures keep their error text.
func upstreamMessage(err error) string {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return llm.ErrCodeUpstream + ": " + statusErr.Status
	}
	return llm.ErrCodeUpstream + ": " + err.Error()
}

// requestID returns a copy of the request id set by the requestid middleware.
// fasthttp reuses request buffers, so the value is cloned before it can
// outlive the handler.
func requestID(c *fiber.Ctx) string {
	rid, _ := c.Locals(requestIDKey).(string)
	return strings.Clone(rid)
}
