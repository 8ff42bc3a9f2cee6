// Package header manages the headers on each leg of the chatrelay proxy.
//
// The proxy sits between a client and the upstream chat service like so:
//
//	Client <--> Proxy <--> Upstream chat service
//
// The client never sends upstream credentials. The proxy injects them on the
// upstream leg and frames the downstream leg as an event stream or a JSON
// passthrough.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// RequestIDHeader carries the correlation id on both legs.
	RequestIDHeader = fiber.HeaderXRequestID

	// RedactedValue replaces secret header values in debug logs.
	RedactedValue = "***"

	ContentTypeJSON        = fiber.MIMEApplicationJSON
	ContentTypeEventStream = "text/event-stream"
)

// Handler manages headers between proxy connections.
type Handler struct {
	tokenHeader   string
	projectHeader string
}

// NewHandler creates a new header Handler that places the access token and
// project under the given upstream header names.
func NewHandler(tokenHeader, projectHeader string) *Handler {
	return &Handler{
		tokenHeader:   tokenHeader,
		projectHeader: projectHeader,
	}
}

// Upstream holds the per-request values injected on the upstream leg.
type Upstream struct {
	AccessToken string
	Project     string
	RequestID   string

	// Stream selects an event-stream Accept header instead of JSON.
	Stream bool
}

// skipResponse is the set of upstream response headers (client <-- proxy <-- upstream)
// that are not copied back to the downstream client on JSON passthrough.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},

	// Go's http.Transport strips Content-Encoding after auto-decompression,
	// so the proxy always holds a decoded body.
	"Content-Encoding": {},

	// Fiber computes the final length of the body it sends.
	"Content-Length": {},

	// The proxy's own correlation id wins over the upstream's.
	RequestIDHeader: {},
}

// SetUpstreamRequestHeaders sets the credential, correlation and content
// negotiation headers on an outgoing upstream request. Empty values are omitted.
func (h *Handler) SetUpstreamRequestHeaders(req *http.Request, up Upstream) {
	if up.Stream {
		req.Header.Set(fiber.HeaderAccept, ContentTypeEventStream)
	} else {
		req.Header.Set(fiber.HeaderAccept, ContentTypeJSON)
	}

	if req.Body != nil && req.Body != http.NoBody {
		req.Header.Set(fiber.HeaderContentType, ContentTypeJSON)
	}

	if up.AccessToken != "" && h.tokenHeader != "" {
		req.Header.Set(h.tokenHeader, up.AccessToken)
	}
	if up.Project != "" && h.projectHeader != "" {
		req.Header.Set(h.projectHeader, up.Project)
	}
	if up.RequestID != "" {
		req.Header.Set(RequestIDHeader, up.RequestID)
	}
}

// SetStreamResponseHeaders frames the downstream response as an event stream.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx, requestID string) {
	c.Set(fiber.HeaderContentType, ContentTypeEventStream)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-transform")
	c.Set(fiber.HeaderConnection, "keep-alive")
	if requestID != "" {
		c.Set(RequestIDHeader, requestID)
	}
}

// SetClientResponseHeaders copies response headers from the upstream
// http.Response to the Fiber context, filtering headers that the proxy should
// not forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}

// Redact returns a copy of hdr with credential values replaced for logging.
func (h *Handler) Redact(hdr http.Header) http.Header {
	out := hdr.Clone()
	for _, name := range []string{h.tokenHeader, fiber.HeaderAuthorization} {
		if name == "" {
			continue
		}
		if _, ok := out[http.CanonicalHeaderKey(name)]; ok {
			out.Set(name, RedactedValue)
		}
	}
	return out
}
