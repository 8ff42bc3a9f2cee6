package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatrelay/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	targetPath string
}

// NewConfiger resolves the .chatrelay/ directory for override and points at
// its config.toml, which need not exist yet.
func NewConfiger(override string) (*Configer, error) {
	target, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return &Configer{targetPath: path}, nil
}

// orderedKeys is the display order for config keys, matching the TOML layout.
var orderedKeys = []string{
	"upstream.base_url",
	"upstream.project",
	"upstream.timeout",
	"upstream.token_header",
	"upstream.project_header",
	"server.listen",
	"server.log_file",
	"server.debug_http",
	"server.debug_http_body",
	"server.debug_upstream",
	"client.target",
	"client.model",
	"client.assistant_id",
	"client.buffer_length",
	"client.hidden",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
}

// ValidConfigKeys returns all supported configuration key names in a stable order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range configKeys {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)

	return append(result, rest...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// Exists reports whether the config file has been written.
func (c *Configer) Exists() bool {
	if c.targetPath == "" {
		return false
	}
	info, err := os.Stat(c.targetPath)
	return err == nil && info.Mode().IsRegular()
}

// LoadConfig loads the configuration from config.toml in the target
// .chatrelay/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := decodeConfig(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills string fields that were explicitly set to "" in the
// file with their defaults. Optional fields without a default are left alone.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}

	fill(&cfg.Upstream.BaseURL, defaults.Upstream.BaseURL)
	fill(&cfg.Upstream.Timeout, defaults.Upstream.Timeout)
	fill(&cfg.Upstream.TokenHeader, defaults.Upstream.TokenHeader)
	fill(&cfg.Upstream.ProjectHeader, defaults.Upstream.ProjectHeader)
	fill(&cfg.Server.Listen, defaults.Server.Listen)
	fill(&cfg.Client.Target, defaults.Client.Target)
	fill(&cfg.EventStream.Provider, defaults.EventStream.Provider)
	fill(&cfg.EventStream.Brokers, defaults.EventStream.Brokers)
	fill(&cfg.EventStream.Topic, defaults.EventStream.Topic)

	if cfg.Client.BufferLength == 0 {
		cfg.Client.BufferLength = defaults.Client.BufferLength
	}
}

// SaveConfig persists the configuration to config.toml in the target
// .chatrelay/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// Write a sibling temp file and rename it into place.
	tmp, err := os.CreateTemp(filepath.Dir(c.targetPath), configFile+".*")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.targetPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// PresetConfig returns a Config with sane defaults for the named preset.
// Supported presets: "local", "kafka".
func PresetConfig(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "local":
		return NewDefaultConfig(), nil

	case "kafka":
		cfg := NewDefaultConfig()
		cfg.EventStream.Provider = EventStreamKafka
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"local", "kafka"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := decodeConfig(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return nil
}
