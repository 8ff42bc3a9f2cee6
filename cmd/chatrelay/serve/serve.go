// Package servecmder provides the serve command that runs the chatrelay proxy.
package servecmder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatrelay/pkg/config"
	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/chatrelay/pkg/logger"
	"github.com/papercomputeco/chatrelay/proxy"
)

const otelScope = "github.com/papercomputeco/chatrelay"

// ErrNoUpstream is returned when no upstream base URL is configured.
var ErrNoUpstream = errors.New("no upstream URL configured (set upstream.base_url or --upstream)")

type serveCommander struct {
	flags serveFlags

	debug  bool
	logger *slog.Logger
}

// serveFlags hold the registered flag targets. The resolved values are read
// back from viper so that env and config file values apply.
type serveFlags struct {
	listen        string
	logFile       string
	upstream      string
	project       string
	timeout       string
	accessToken   string
	debugHTTP     bool
	debugHTTPBody bool
	debugUpstream bool
	eventStream   string
	kafkaBrokers  string
	kafkaTopic    string
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagLogFile,
	config.FlagUpstream,
	config.FlagProject,
	config.FlagTimeout,
	config.FlagAccessToken,
	config.FlagDebugHTTP,
	config.FlagDebugHTTPBody,
	config.FlagDebugUpstream,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the chatrelay proxy server.

The proxy validates chat requests, forwards them to the upstream chat service
with the access token attached, and relays the upstream event stream back to
the client unchanged. The access token is read from
CHATRELAY_UPSTREAM_ACCESS_TOKEN or --access-token and is never written to the
config file.

Routes:
  GET  /health
  GET  /v1/models
  GET  /v1/assistants/:assistantId/users
  POST /v1/chat
  POST /v1/chat/stream

When eventstream.provider is "kafka", a session event is published for every
relayed stream.

Examples:
  chatrelay serve --upstream https://chat.example.com/api/v2
  chatrelay serve --eventstream kafka --kafka-brokers broker-1:9092`

const serveShortDesc string = "Run the chatrelay proxy server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}
	var v *viper.Viper

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			var err error
			v, err = config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			proxyConfig, err := ProxyConfigFromViper(v)
			if err != nil {
				return err
			}
			return cmder.run(v, proxyConfig)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.flags.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.flags.logFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.flags.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagProject, &cmder.flags.project)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.flags.timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagAccessToken, &cmder.flags.accessToken)
	config.AddBoolFlag(cmd, config.Flags, config.FlagDebugHTTP, &cmder.flags.debugHTTP)
	config.AddBoolFlag(cmd, config.Flags, config.FlagDebugHTTPBody, &cmder.flags.debugHTTPBody)
	config.AddBoolFlag(cmd, config.Flags, config.FlagDebugUpstream, &cmder.flags.debugUpstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.flags.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.flags.kafkaTopic)

	return cmd
}

// ProxyConfigFromViper resolves the proxy configuration from v. The event
// publisher is not set.
func ProxyConfigFromViper(v *viper.Viper) (proxy.Config, error) {
	upstreamURL := v.GetString("upstream.base_url")
	if upstreamURL == "" {
		return proxy.Config{}, ErrNoUpstream
	}

	timeout, err := time.ParseDuration(v.GetString("upstream.timeout"))
	if err != nil {
		return proxy.Config{}, fmt.Errorf("invalid upstream.timeout: %w", err)
	}

	return proxy.Config{
		ListenAddr:      v.GetString("server.listen"),
		UpstreamURL:     upstreamURL,
		AccessToken:     v.GetString(config.AccessTokenKey),
		Project:         v.GetString("upstream.project"),
		TokenHeader:     v.GetString("upstream.token_header"),
		ProjectHeader:   v.GetString("upstream.project_header"),
		UpstreamTimeout: timeout,
		DebugHTTP:       v.GetBool("server.debug_http"),
		DebugHTTPBody:   v.GetBool("server.debug_http_body"),
		DebugUpstream:   v.GetBool("server.debug_upstream"),
	}, nil
}

// NewPublisher builds the session event publisher selected by
// eventstream.provider.
func NewPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	switch provider := v.GetString("eventstream.provider"); provider {
	case "", config.EventStreamNone:
		return nop.NewPublisher(), nil
	case config.EventStreamKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: v.GetString("eventstream.brokers"),
			Topic:   v.GetString("eventstream.topic"),
		})
	default:
		return nil, fmt.Errorf("unknown eventstream provider: %q", provider)
	}
}

func (c *serveCommander) run(v *viper.Viper, proxyConfig proxy.Config) error {
	logFile, err := c.setupLogger(v.GetString("server.log_file"))
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if proxyConfig.AccessToken == "" {
		c.logger.Warn("no upstream access token configured; set CHATRELAY_UPSTREAM_ACCESS_TOKEN")
	}

	publisher, err := NewPublisher(v)
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()
	proxyConfig.Publisher = publisher

	p, err := proxy.New(proxyConfig, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("starting chatrelay",
		"listen", proxyConfig.ListenAddr,
		"upstream", proxyConfig.UpstreamURL,
		"project", proxyConfig.Project,
		"eventstream", v.GetString("eventstream.provider"),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// setupLogger writes pretty logs to stderr and forwards records to the
// OpenTelemetry log bridge. JSON logs go to path as well when it is set.
func (c *serveCommander) setupLogger(path string) (*os.File, error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(os.Stderr),
	)
	bridge := logger.OTel(otelScope)

	if path == "" {
		c.logger = logger.Multi(console, bridge)
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	c.logger = logger.Multi(console, bridge, logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatJSON),
		logger.WithWriter(f),
		logger.WithComponent("serve"),
	))
	return f, nil
}
