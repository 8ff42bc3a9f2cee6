package chatclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/chatclient"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/sse"
	"github.com/papercomputeco/chatrelay/pkg/utils"
	testutils "github.com/papercomputeco/chatrelay/pkg/utils/test"
)

func simpleRequest() *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hi")},
	}
}

var _ = Describe("Client", func() {
	var server *fakeServer

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	Describe("ListModels", func() {
		It("normalizes the model list", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"data":[{"id":"gpt-4o"},"claude",42,{"name":"x"}]}`)
			})

			models, err := chatclient.New(server.URL + "/").ListModels(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(models).To(Equal([]string{"gpt-4o", "claude"}))

			reqs := server.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Method).To(Equal(http.MethodGet))
			Expect(reqs[0].Path).To(Equal("/v1/models"))
			_, err = uuid.Parse(reqs[0].Header.Get("X-Request-Id"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reqs[0].Header.Get("User-Agent")).To(Equal(utils.UserAgent()))
		})

		It("returns a StatusError for a failed response", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, `{"error":"upstream_error"}`)
			})

			_, err := chatclient.New(server.URL).ListModels(context.Background())
			var statusErr *llm.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(statusErr.Body).To(ContainSubstring("upstream_error"))
		})
	})

	Describe("Chat", func() {
		It("returns the raw JSON reply", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"answer":"hello"}`)
			})

			raw, err := chatclient.New(server.URL).Chat(context.Background(), simpleRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(MatchJSON(`{"answer":"hello"}`))

			req := server.Requests()[0]
			Expect(req.Path).To(Equal("/v1/chat"))
			Expect(req.Header.Get("Accept")).To(Equal("application/json"))
			Expect(req.Chat.Model).To(Equal("gpt-4o"))
		})

		It("rejects a reply that is not JSON", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "<html>oops</html>")
			})

			_, err := chatclient.New(server.URL).Chat(context.Background(), simpleRequest())
			Expect(err).To(MatchError(ContainSubstring("invalid JSON response")))
		})
	})

	Describe("StreamChat", func() {
		It("delivers deltas in order and stops at the sentinel", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				testutils.WriteSSE(w,
					testutils.DeltaEvent("Hel"),
					": comment\n\n",
					testutils.DeltaEvent("lo"),
					testutils.Done,
					testutils.DeltaEvent("ignored"),
				)
			})

			var pieces []string
			text, err := chatclient.New(server.URL).StreamChat(context.Background(), simpleRequest(), func(s string) {
				pieces = append(pieces, s)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Hello"))
			Expect(pieces).To(Equal([]string{"Hel", "lo"}))

			req := server.Requests()[0]
			Expect(req.Method).To(Equal(http.MethodPost))
			Expect(req.Path).To(Equal("/v1/chat/stream"))
			Expect(req.Header.Get("Accept")).To(Equal("text/event-stream"))
			Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
		})

		It("returns a StatusError without reading a stream", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, strings.Repeat("e", 3000))
			})

			called := false
			_, err := chatclient.New(server.URL).StreamChat(context.Background(), simpleRequest(), func(string) {
				called = true
			})
			var statusErr *llm.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(statusErr.Body).To(HaveLen(llm.ErrorPreviewLimit))
			Expect(called).To(BeFalse())
		})

		It("keeps the partial text when cancelled", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, r *http.Request) {
				streamThenHang(w, r, testutils.DeltaEvent("Hel"))
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			text, err := chatclient.New(server.URL).StreamChat(ctx, simpleRequest(), func(string) {
				cancel()
			})
			Expect(errors.Is(err, sse.ErrAborted)).To(BeTrue())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(text).To(Equal("Hel"))
		})

		It("reports a cancelled request as aborted", func() {
			server = newFakeServer(func(_ int, w http.ResponseWriter, _ *http.Request) {
				testutils.WriteSSE(w, testutils.DeltaEvent("never"))
			})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			text, err := chatclient.New(server.URL).StreamChat(ctx, simpleRequest(), nil)
			Expect(errors.Is(err, sse.ErrAborted)).To(BeTrue())
			Expect(text).To(BeEmpty())
		})
	})
})
