package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/sse"
	"github.com/papercomputeco/chatrelay/proxy/upstream"
	"github.com/papercomputeco/chatrelay/proxy/worker"
)

const (
	// relayBufferSize is the largest chunk copied downstream in one write.
	relayBufferSize = 32 * 1024

	noBodyEventName = "error"
	noBodyEventData = `{"message":"Upstream returned no body"}`
)

// streamSession is the state of one relayed stream, from the upstream call
// until the downstream sink is closed.
type streamSession struct {
	requestID string
	path      string
	req       *llm.ChatRequest

	ctx    context.Context
	cancel context.CancelFunc

	resp *http.Response
	sink *io.PipeWriter

	startedAt time.Time
	status    int
	bytes     int64
	outcome   eventstream.Outcome
	err       error
}

// handleChatStream validates the request, opens the upstream stream and
// hands the copy off to relayStream.
func (p *Proxy) handleChatStream(c *fiber.Ctx) error {
	rid := requestID(c)

	req, err := llm.ParseChatRequest(c.Body())
	if err != nil {
		return p.invalidRequest(c, rid, err)
	}

	body, err := req.UpstreamBody(true)
	if err != nil {
		return p.internalError(c, rid, err)
	}

	query := url.Values{}
	if bl := req.BufferLengthParam(); bl != "" {
		query.Set("buffer_length", bl)
	}

	// The session context derives from the proxy rather than c.Context():
	// fasthttp recycles its RequestCtx once the handler returns, while the
	// copy keeps running in its own goroutine.
	ctx, cancel := context.WithCancel(p.baseCtx)
	sess := &streamSession{
		requestID: rid,
		path:      c.Path(),
		req:       req,
		ctx:       ctx,
		cancel:    cancel,
		startedAt: time.Now(),
	}

	resp, err := p.upstream.OpenStream(ctx, upstream.Request{
		Method:    http.MethodPost,
		Path:      chatPath,
		Query:     query,
		Body:      body,
		RequestID: rid,
	})
	if err != nil {
		cancel()
		sess.status = http.StatusBadGateway
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			sess.status = statusErr.StatusCode
		}
		sess.finish(eventstream.OutcomeUpstreamError, err)
		p.publishSession(sess)
		return p.upstreamError(c, rid, err)
	}

	sess.resp = resp
	sess.status = resp.StatusCode

	p.headerHandler.SetStreamResponseHeaders(c, rid)
	c.Status(fiber.StatusOK)

	// io.Pipe gives backpressure: pw.Write blocks until fasthttp's chunked
	// body writer has consumed the chunk and flushed it to the socket.
	pr, pw := io.Pipe()
	sess.sink = pw

	p.sessions.Add(1)
	go p.relayStream(sess)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// relayStream copies the upstream body to the sink verbatim, one chunk per
// read, without parsing it. Every exit path closes the sink and the upstream
// body and cancels the session context.
func (p *Proxy) relayStream(sess *streamSession) {
	defer p.sessions.Done()
	defer p.publishSession(sess)
	defer sess.cancel()
	defer sess.resp.Body.Close()

	if !upstream.HasBody(sess.resp) {
		if err := sse.WriteEvent(sess.sink, noBodyEventName, noBodyEventData); err != nil {
			sess.finish(eventstream.OutcomeClientDisconnected, nil)
		} else {
			sess.finish(eventstream.OutcomeNoBody, nil)
		}
		_ = sess.sink.Close()
		return
	}

	buf := make([]byte, relayBufferSize)
	for {
		n, rerr := sess.resp.Body.Read(buf)
		if n > 0 {
			if _, werr := sess.sink.Write(buf[:n]); werr != nil {
				// The downstream reader is gone; this is not a relay failure.
				sess.finish(eventstream.OutcomeClientDisconnected, nil)
				_ = sess.sink.Close()
				return
			}
			sess.bytes += int64(n)
		}

		if rerr == nil {
			continue
		}

		switch {
		case errors.Is(rerr, io.EOF):
			sess.finish(eventstream.OutcomeCompleted, nil)
			_ = sess.sink.Close()
		case sess.ctx.Err() != nil:
			sess.finish(eventstream.OutcomeCancelled, sess.ctx.Err())
			_ = sess.sink.Close()
		default:
			// Abort the chunked body so the client sees a truncated stream
			// rather than a clean end.
			sess.finish(eventstream.OutcomeUpstreamError, rerr)
			_ = sess.sink.CloseWithError(rerr)
		}
		return
	}
}

func (s *streamSession) finish(outcome eventstream.Outcome, err error) {
	s.outcome = outcome
	s.err = err
}

// publishSession logs the end of a session and enqueues its event.
func (p *Proxy) publishSession(sess *streamSession) {
	completedAt := time.Now()
	duration := completedAt.Sub(sess.startedAt)

	attrs := []any{
		"request_id", sess.requestID,
		"outcome", sess.outcome,
		"status", sess.status,
		"bytes", sess.bytes,
		"duration", duration,
	}
	if sess.err != nil {
		attrs = append(attrs, "error", sess.err)
		p.logger.Warn("stream session ended", attrs...)
	} else {
		p.logger.Info("stream session ended", attrs...)
	}
	p.metrics.record(context.Background(), sess.outcome, sess.status, sess.bytes, duration)

	event := &eventstream.StreamSessionEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeStreamCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     completedAt.UTC(),
		Source: eventstream.EventSource{
			Project:  p.config.Project,
			Upstream: p.config.UpstreamURL,
		},
		Session: eventstream.SessionMeta{
			RequestID:    sess.requestID,
			Path:         sess.path,
			StartedAt:    sess.startedAt.UTC(),
			CompletedAt:  completedAt.UTC(),
			DurationMs:   duration.Milliseconds(),
			HTTPStatus:   sess.status,
			BytesRelayed: sess.bytes,
			Outcome:      sess.outcome,
		},
		Request: eventstream.RequestTarget{
			AssistantID:    sess.req.AssistantID,
			Model:          sess.req.Model,
			ConversationID: sess.req.ConversationID,
			MessageCount:   len(sess.req.Messages),
		},
	}
	if sess.err != nil {
		event.Session.Error = sess.err.Error()
	}

	p.workerPool.Enqueue(worker.Job{Event: event})
}
