package initcmder_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/init"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatrelay-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("creates a .chatrelay directory in the current directory", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".chatrelay"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		_, err = os.Stat(filepath.Join(tmpDir, ".chatrelay", "config.toml"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("does not overwrite existing contents when already initialized", func() {
		dir := filepath.Join(tmpDir, ".chatrelay")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

		testFile := filepath.Join(dir, "thread.json")
		Expect(os.WriteFile(testFile, []byte(`{"id":"abc"}`), 0o644)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(testFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"id":"abc"}`))
	})

	Describe("--preset with named presets", func() {
		It("writes the local preset", func() {
			Expect(execute("--preset", "local")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Version).To(Equal(config.CurrentV))
			Expect(cfg.Server.Listen).To(Equal(":8787"))
			Expect(cfg.EventStream.Provider).To(Equal(config.EventStreamNone))
		})

		It("writes the kafka preset", func() {
			Expect(execute("--preset", "kafka")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.EventStream.Provider).To(Equal(config.EventStreamKafka))
			Expect(cfg.EventStream.Brokers).To(Equal("localhost:9092"))
		})

		It("rejects unknown preset names", func() {
			err := execute("--preset", "invalid-preset")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))

			_, statErr := os.Stat(filepath.Join(tmpDir, ".chatrelay"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("overwrites config.toml when re-run with another preset", func() {
			Expect(execute("--preset", "kafka")).To(Succeed())
			Expect(loadConfig(tmpDir).EventStream.Provider).To(Equal(config.EventStreamKafka))

			Expect(execute("--preset", "local")).To(Succeed())
			Expect(loadConfig(tmpDir).EventStream.Provider).To(Equal(config.EventStreamNone))
		})
	})

	Describe("--preset with a remote URL", func() {
		It("fetches and writes the remote config.toml", func() {
			remoteCfg := `version = 0

[upstream]
base_url = "https://chat.example.com/api/v2"
timeout = "90s"

[server]
listen = ":9090"
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Upstream.BaseURL).To(Equal("https://chat.example.com/api/v2"))
			Expect(cfg.Upstream.Timeout).To(Equal("90s"))
			Expect(cfg.Server.Listen).To(Equal(":9090"))
		})

		It("returns an error for a non-200 response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("returns an error for invalid TOML", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("parsing")))
		})

		It("returns an error for an unreachable URL", func() {
			Expect(execute("--preset", "http://127.0.0.1:1")).To(MatchError(ContainSubstring("fetching remote config")))
		})
	})
})

// loadConfig reads and parses config.toml from the .chatrelay directory
// within baseDir.
func loadConfig(baseDir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(baseDir, ".chatrelay", "config.toml"))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	ExpectWithOffset(1, toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
