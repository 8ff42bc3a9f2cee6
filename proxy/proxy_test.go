package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

var _ = Describe("Proxy routes", func() {
	var (
		p        *Proxy
		upstream *fakeUpstream
	)

	AfterEach(func() {
		if p != nil {
			Expect(p.Close()).To(Succeed())
		}
		if upstream != nil {
			upstream.Close()
		}
	})

	Describe("New", func() {
		It("requires an upstream URL", func() {
			_, err := New(Config{}, nil)
			Expect(err).To(MatchError(ContainSubstring("upstream URL is required")))
		})
	})

	Describe("GET /health", func() {
		It("reports ok without calling upstream", func() {
			upstream = newFakeUpstream(func(http.ResponseWriter, *http.Request) {})
			p, _ = newTestProxy(upstream.URL)

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(body).To(MatchJSON(`{"ok":true}`))
			Expect(upstream.Calls()).To(Equal(0))
		})
	})

	Describe("request ids", func() {
		BeforeEach(func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `[]`)
			})
			p, _ = newTestProxy(upstream.URL)
		})

		It("reuses an incoming X-Request-Id and forwards it upstream", func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
			req.Header.Set("X-Request-Id", "client-rid-1")

			resp, err := p.server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("X-Request-Id")).To(Equal("client-rid-1"))
			Expect(upstream.Last().Header.Get("X-Request-Id")).To(Equal("client-rid-1"))
		})

		It("generates a UUID when the client sends none", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			rid := resp.Header.Get("X-Request-Id")
			_, err = uuid.Parse(rid)
			Expect(err).NotTo(HaveOccurred())
			Expect(upstream.Last().Header.Get("X-Request-Id")).To(Equal(rid))
		})
	})

	Describe("GET /v1/models", func() {
		It("passes the upstream JSON through with credentials injected", func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"data":[{"id":"gpt-4o"}]}`)
			})
			p, _ = newTestProxy(upstream.URL)

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json; charset=utf-8"))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal(`{"data":[{"id":"gpt-4o"}]}`))

			call := upstream.Last()
			Expect(call.Method).To(Equal(http.MethodGet))
			Expect(call.Path).To(Equal("/api/v2/models"))
			Expect(call.Header.Get("X-Access-Token")).To(Equal("secret-token"))
			Expect(call.Header.Get("X-Project")).To(Equal("proj-1"))
		})

		It("maps an upstream failure to 502 upstream_error", func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, "boom")
			})
			p, _ = newTestProxy(upstream.URL)

			req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
			req.Header.Set("X-Request-Id", "rid-502")
			resp, err := p.server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			out := decodeErrorResponse(resp.Body)
			Expect(out.Error).To(Equal(llm.ErrCodeUpstream))
			Expect(out.Message).To(Equal("upstream_error: 500 Internal Server Error"))
			Expect(out.RequestID).To(Equal("rid-502"))
		})

		It("maps a non-JSON success to 502", func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = io.WriteString(w, "<html></html>")
			})
			p, _ = newTestProxy(upstream.URL)

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("maps a transport failure to 502", func() {
			upstream = newFakeUpstream(func(http.ResponseWriter, *http.Request) {})
			url := upstream.URL
			upstream.Close()
			upstream = nil
			p, _ = newTestProxy(url)

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(decodeErrorResponse(resp.Body).Error).To(Equal(llm.ErrCodeUpstream))
		})
	})

	Describe("in-flight JSON calls", func() {
		var (
			started      chan struct{}
			upstreamDone chan struct{}
		)

		BeforeEach(func() {
			started = make(chan struct{})
			upstreamDone = make(chan struct{})
			upstream = newFakeUpstream(func(_ http.ResponseWriter, r *http.Request) {
				close(started)
				<-r.Context().Done()
				close(upstreamDone)
			})
			p, _ = newTestProxy(upstream.URL)
		})

		It("cancels the upstream call when the server shuts down", func() {
			base := serve(p)
			go func() {
				resp, err := http.Get(base + "/v1/models")
				if err == nil {
					resp.Body.Close()
				}
			}()
			Eventually(started, 5*time.Second).Should(BeClosed())

			shutdown := make(chan error, 1)
			go func() { shutdown <- p.server.Shutdown() }()

			Eventually(upstreamDone, 5*time.Second).Should(BeClosed())
			Eventually(shutdown, 5*time.Second).Should(Receive(BeNil()))

			// The server is already down; release the rest without a second shutdown.
			p.closeOnce.Do(func() {
				p.cancel()
				p.workerPool.Close()
			})
		})

		It("cancels the upstream call on Close", func() {
			base := serve(p)
			go func() {
				resp, err := http.Get(base + "/v1/models")
				if err == nil {
					resp.Body.Close()
				}
			}()
			Eventually(started, 5*time.Second).Should(BeClosed())

			Expect(p.Close()).To(Succeed())
			Eventually(upstreamDone, 5*time.Second).Should(BeClosed())
		})
	})

	Describe("GET /v1/assistants/:assistantId/users", func() {
		It("forwards to the assistant users path", func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"users":[]}`)
			})
			p, _ = newTestProxy(upstream.URL)

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/assistants/"+testAssistantID+"/users", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(upstream.Last().Path).To(Equal("/api/v2/assistants/" + testAssistantID + "/users"))
		})
	})

	Describe("POST /v1/chat", func() {
		It("forwards a validated, non-streaming body and passes the response through", func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"answer":"hi"}`)
			})
			p, _ = newTestProxy(upstream.URL)

			resp, err := p.server.Test(postJSON("/v1/chat", chatRequestBody(map[string]any{
				"stream":  true,
				"unknown": "dropped",
			})))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal(`{"answer":"hi"}`))

			call := upstream.Last()
			Expect(call.Method).To(Equal(http.MethodPost))
			Expect(call.Path).To(Equal("/api/v2/chat/agent"))
			Expect(call.Query).To(BeEmpty())

			var sent map[string]any
			Expect(json.Unmarshal(call.Body, &sent)).To(Succeed())
			Expect(sent["stream"]).To(BeFalse())
			Expect(sent["model"]).To(Equal("gpt-4o"))
			Expect(sent).NotTo(HaveKey("unknown"))
			Expect(sent["messages"]).To(ConsistOf(map[string]any{
				"role":     "user",
				"content":  "Say hello",
				"metadata": map[string]any{},
			}))
		})
	})

	Describe("input validation", func() {
		BeforeEach(func() {
			upstream = newFakeUpstream(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{}`)
			})
			p, _ = newTestProxy(upstream.URL)
		})

		for _, path := range []string{"/v1/chat", "/v1/chat/stream"} {
			DescribeTable("rejects invalid bodies with 400 and never calls upstream on "+path,
				func(body, field string) {
					req := postJSON(path, body)
					req.Header.Set("X-Request-Id", "rid-400")

					resp, err := p.server.Test(req)
					Expect(err).NotTo(HaveOccurred())
					defer resp.Body.Close()

					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
					out := decodeErrorResponse(resp.Body)
					Expect(out.Error).To(Equal(llm.ErrCodeInvalidRequest))
					Expect(out.Message).NotTo(BeEmpty())
					Expect(out.RequestID).To(Equal("rid-400"))
					Expect(out.Details).To(ContainElement(HaveField("Field", field)))

					Expect(upstream.Calls()).To(Equal(0))
				},
				Entry("empty body", "", "body"),
				Entry("malformed JSON", `{"model":`, "body"),
				Entry("empty messages", chatRequestBody(map[string]any{"messages": []any{}}), "messages"),
				Entry("missing messages", chatRequestBody(map[string]any{"messages": nil}), "messages"),
				Entry("neither assistant_id nor model", chatRequestBody(map[string]any{"model": nil}), "assistant_id"),
				Entry("both assistant_id and model", chatRequestBody(map[string]any{"assistant_id": testAssistantID}), "assistant_id"),
				Entry("assistant_id not a UUID", chatRequestBody(map[string]any{"model": nil, "assistant_id": "not-a-uuid"}), "assistant_id"),
				Entry("unknown role", chatRequestBody(map[string]any{"messages": []map[string]any{{"role": "robot", "content": "x"}}}), "messages[0].role"),
				Entry("missing content", chatRequestBody(map[string]any{"messages": []map[string]any{{"role": "user"}}}), "messages[0].content"),
				Entry("buffer_length below 1", chatRequestBody(map[string]any{"buffer_length": 0}), "buffer_length"),
				Entry("temperature above 2", chatRequestBody(map[string]any{"temperature": 2.5}), "temperature"),
				Entry("content of the wrong type", chatRequestBody(map[string]any{"messages": []map[string]any{{"role": "user", "content": 7}}}), "messages.content"),
			)
		}
	})
})
