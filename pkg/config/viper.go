package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatrelay/pkg/dotdir"
)

// EnvPrefix is the prefix of every environment variable chatrelay reads.
const EnvPrefix = "CHATRELAY"

// AccessTokenKey is the viper key of the upstream access token. It has no
// config file counterpart; set CHATRELAY_UPSTREAM_ACCESS_TOKEN or pass
// --access-token.
const AccessTokenKey = "upstream.access_token"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHATRELAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATRELAY_SERVER_LISTEN, CHATRELAY_UPSTREAM_BASE_URL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("upstream.base_url", d.Upstream.BaseURL)
	v.SetDefault("upstream.project", d.Upstream.Project)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.token_header", d.Upstream.TokenHeader)
	v.SetDefault("upstream.project_header", d.Upstream.ProjectHeader)
	v.SetDefault(AccessTokenKey, "")

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.log_file", d.Server.LogFile)
	v.SetDefault("server.debug_http", d.Server.DebugHTTP)
	v.SetDefault("server.debug_http_body", d.Server.DebugHTTPBody)
	v.SetDefault("server.debug_upstream", d.Server.DebugUpstream)

	v.SetDefault("client.target", d.Client.Target)
	v.SetDefault("client.model", d.Client.Model)
	v.SetDefault("client.assistant_id", d.Client.AssistantID)
	v.SetDefault("client.buffer_length", d.Client.BufferLength)
	v.SetDefault("client.hidden", d.Client.Hidden)

	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}
