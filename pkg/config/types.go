package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent chatrelay configuration stored as
// config.toml in the .chatrelay/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Server      ServerConfig      `toml:"server"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// UpstreamConfig describes the remote chat service the relay forwards to.
// The access token is deliberately absent: it is only ever read from the
// environment or a flag, never persisted.
type UpstreamConfig struct {
	BaseURL       string `toml:"base_url,omitempty"`
	Project       string `toml:"project,omitempty"`
	Timeout       string `toml:"timeout,omitempty"`
	TokenHeader   string `toml:"token_header,omitempty"`
	ProjectHeader string `toml:"project_header,omitempty"`
}

// ServerConfig holds settings for "chatrelay serve".
type ServerConfig struct {
	Listen        string `toml:"listen,omitempty"`
	LogFile       string `toml:"log_file,omitempty"`
	DebugHTTP     bool   `toml:"debug_http,omitempty"`
	DebugHTTPBody bool   `toml:"debug_http_body,omitempty"`
	DebugUpstream bool   `toml:"debug_upstream,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running relay
// (chatrelay chat, chatrelay models). Target is a full URL.
type ClientConfig struct {
	Target       string `toml:"target,omitempty"`
	Model        string `toml:"model,omitempty"`
	AssistantID  string `toml:"assistant_id,omitempty"`
	BufferLength uint   `toml:"buffer_length,omitempty"`
	Hidden       bool   `toml:"hidden"`
}

// EventStreamConfig selects where stream session events are published.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// TimeoutDuration parses Upstream.Timeout, falling back to the default when
// it is empty.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	raw := c.Upstream.Timeout
	if raw == "" {
		raw = defaultUpstreamTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid value for upstream.timeout: %w", err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func boolKey(key string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"upstream.base_url":       stringKey(func(c *Config) *string { return &c.Upstream.BaseURL }),
	"upstream.project":        stringKey(func(c *Config) *string { return &c.Upstream.Project }),
	"upstream.token_header":   stringKey(func(c *Config) *string { return &c.Upstream.TokenHeader }),
	"upstream.project_header": stringKey(func(c *Config) *string { return &c.Upstream.ProjectHeader }),
	"upstream.timeout": {
		get: func(c *Config) string { return c.Upstream.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for upstream.timeout: %w", err)
			}
			c.Upstream.Timeout = v
			return nil
		},
	},

	"server.listen":          stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.log_file":        stringKey(func(c *Config) *string { return &c.Server.LogFile }),
	"server.debug_http":      boolKey("server.debug_http", func(c *Config) *bool { return &c.Server.DebugHTTP }),
	"server.debug_http_body": boolKey("server.debug_http_body", func(c *Config) *bool { return &c.Server.DebugHTTPBody }),
	"server.debug_upstream":  boolKey("server.debug_upstream", func(c *Config) *bool { return &c.Server.DebugUpstream }),

	"client.target":       stringKey(func(c *Config) *string { return &c.Client.Target }),
	"client.model":        stringKey(func(c *Config) *string { return &c.Client.Model }),
	"client.assistant_id": stringKey(func(c *Config) *string { return &c.Client.AssistantID }),
	"client.hidden":       boolKey("client.hidden", func(c *Config) *bool { return &c.Client.Hidden }),
	"client.buffer_length": {
		get: func(c *Config) string {
			if c.Client.BufferLength == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Client.BufferLength), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for client.buffer_length: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("invalid value for client.buffer_length: must be at least 1")
			}
			c.Client.BufferLength = uint(n)
			return nil
		},
	},

	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNone, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)", v, EventStreamNone, EventStreamKafka)
			}
		},
	},
	"eventstream.brokers": stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":   stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}
