package proxy

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatrelay/pkg/utils"
)

// debugBodyPreviewLimit bounds request and response body previews.
const debugBodyPreviewLimit = 4096

// debugHTTP logs each request and its response status. With DebugHTTPBody it
// also logs body previews; streamed response bodies are never buffered.
func (p *Proxy) debugHTTP(c *fiber.Ctx) error {
	start := time.Now()
	rid := requestID(c)

	reqAttrs := []any{
		"request_id", rid,
		"method", c.Method(),
		"path", c.Path(),
	}
	if p.config.DebugHTTPBody && len(c.Body()) > 0 {
		reqAttrs = append(reqAttrs, "body_preview", utils.Prefix(string(c.Body()), debugBodyPreviewLimit))
	}
	p.logger.Debug("http.request", reqAttrs...)

	err := c.Next()

	respAttrs := []any{
		"request_id", rid,
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	}
	if p.config.DebugHTTPBody && !c.Response().IsBodyStream() {
		if body := c.Response().Body(); len(body) > 0 {
			respAttrs = append(respAttrs, "body_preview", utils.Prefix(string(body), debugBodyPreviewLimit))
		}
	}
	if err != nil {
		respAttrs = append(respAttrs, "error", err)
	}
	p.logger.Debug("http.response", respAttrs...)

	return err
}
