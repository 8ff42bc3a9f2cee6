package modelscmder_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	modelscmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/models"
)

var _ = Describe("Models command", func() {
	var (
		configDir string
		server    *httptest.Server
	)

	BeforeEach(func() {
		var err error
		configDir, err = os.MkdirTemp("", "chatrelay-models-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
		os.RemoveAll(configDir)
	})

	execute := func() (string, error) {
		root := &cobra.Command{Use: "chatrelay", SilenceUsage: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(modelscmder.NewModelsCmd())

		out := &bytes.Buffer{}
		root.SetArgs([]string{"models", "--config-dir", configDir, "--target", server.URL})
		root.SetOut(out)
		root.SetErr(&bytes.Buffer{})
		err := root.Execute()
		return out.String(), err
	}

	It("has a --target flag", func() {
		cmd := modelscmder.NewModelsCmd()
		Expect(cmd.Use).To(Equal("models"))
		Expect(cmd.Flags().Lookup("target")).NotTo(BeNil())
	})

	It("prints the normalized model names", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"models":["gpt-4o","claude-3"]}`)
		}))

		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("gpt-4o"))
		Expect(out).To(ContainSubstring("claude-3"))
		Expect(out).To(ContainSubstring("(2)"))
	})

	It("reports an empty list", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"unexpected":true}`)
		}))

		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No models available."))
	})

	It("fails when the server errors", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := execute()
		Expect(err).To(MatchError(ContainSubstring("listing models")))
	})
})
