package header

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SetUpstreamRequestHeaders", func() {
	var hh *Handler

	BeforeEach(func() {
		hh = NewHandler("X-Access-Token", "X-Project")
	})

	It("injects credentials, project and request id on a streaming request", func() {
		req, _ := http.NewRequest(http.MethodPost, "http://upstream/chat/agent", strings.NewReader("{}"))
		hh.SetUpstreamRequestHeaders(req, Upstream{
			AccessToken: "secret",
			Project:     "proj-1",
			RequestID:   "req-1",
			Stream:      true,
		})

		Expect(req.Header.Get("X-Access-Token")).To(Equal("secret"))
		Expect(req.Header.Get("X-Project")).To(Equal("proj-1"))
		Expect(req.Header.Get("X-Request-Id")).To(Equal("req-1"))
		Expect(req.Header.Get("Accept")).To(Equal("text/event-stream"))
		Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
	})

	It("asks for JSON and omits the content type without a body", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream/models", nil)
		hh.SetUpstreamRequestHeaders(req, Upstream{AccessToken: "secret"})

		Expect(req.Header.Get("Accept")).To(Equal("application/json"))
		Expect(req.Header.Get("Content-Type")).To(BeEmpty())
	})

	It("omits empty optional values", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream/models", nil)
		hh.SetUpstreamRequestHeaders(req, Upstream{})

		Expect(req.Header).NotTo(HaveKey("X-Access-Token"))
		Expect(req.Header).NotTo(HaveKey("X-Project"))
		Expect(req.Header).NotTo(HaveKey("X-Request-Id"))
	})
})

var _ = Describe("SetStreamResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler("X-Access-Token", "")
	})

	AfterEach(func() {
		app.Shutdown()
	})

	It("frames the response as an uncached event stream", func() {
		app.Get("/stream", func(c *fiber.Ctx) error {
			hh.SetStreamResponseHeaders(c, "req-9")
			return c.SendString("data: x\n\n")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache, no-transform"))
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("req-9"))
	})
})

var _ = Describe("SetClientResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler("X-Access-Token", "X-Project")
	})

	AfterEach(func() {
		app.Shutdown()
	})

	It("forwards standard upstream response headers to the client", func() {
		app.Get("/test", func(c *fiber.Ctx) error {
			resp := &http.Response{
				Header: http.Header{
					"Content-Type":   {"application/json"},
					"X-Custom-Value": {"hello"},
				},
			}
			hh.SetClientResponseHeaders(c, resp)
			return c.SendString("{}")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(resp.Header.Get("X-Custom-Value")).To(Equal("hello"))
	})

	It("drops hop-by-hop, encoding and upstream request id headers", func() {
		app.Get("/test", func(c *fiber.Ctx) error {
			resp := &http.Response{
				Header: http.Header{
					"Content-Encoding": {"gzip"},
					"Content-Length":   {"999"},
					"X-Request-Id":     {"upstream-id"},
				},
			}
			hh.SetClientResponseHeaders(c, resp)
			return c.SendString("{}")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())
		Expect(resp.Header.Get("Content-Length")).To(Equal("2"))
		Expect(resp.Header.Get("X-Request-Id")).To(BeEmpty())
	})
})

var _ = Describe("Redact", func() {
	It("masks the token header and Authorization without mutating the input", func() {
		hh := NewHandler("X-Access-Token", "X-Project")
		in := http.Header{}
		in.Set("X-Access-Token", "secret")
		in.Set("Authorization", "Bearer abc")
		in.Set("X-Project", "proj-1")

		out := hh.Redact(in)

		Expect(out.Get("X-Access-Token")).To(Equal(RedactedValue))
		Expect(out.Get("Authorization")).To(Equal(RedactedValue))
		Expect(out.Get("X-Project")).To(Equal("proj-1"))
		Expect(in.Get("X-Access-Token")).To(Equal("secret"))
	})

	It("does not add headers that were absent", func() {
		hh := NewHandler("X-Access-Token", "")
		out := hh.Redact(http.Header{"Accept": {"application/json"}})
		Expect(out).NotTo(HaveKey("X-Access-Token"))
		Expect(out).NotTo(HaveKey("Authorization"))
	})
})
