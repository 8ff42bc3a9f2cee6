// Package initcmder provides the init command for initializing a local
// .chatrelay directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const (
	dirName = ".chatrelay"

	// maxRemoteConfigBytes bounds a config fetched with --preset <url>.
	maxRemoteConfigBytes = 1 << 20

	fetchTimeout = 30 * time.Second
)

const initLongDesc string = `Initialize a new .chatrelay/ directory in the current working directory.

Creates a local .chatrelay/ directory that takes precedence over the default
~/.chatrelay/ directory for configuration and the saved chat thread.

With --preset, a config.toml is written as well. The preset is either a named
preset (local, kafka) or an http(s) URL of a config.toml to fetch. An existing
config.toml is overwritten.

Examples:
  chatrelay init
  chatrelay init --preset kafka
  chatrelay init --preset https://example.com/chatrelay/config.toml`

const initShortDesc string = "Initialize a local .chatrelay/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Write config.toml from a named preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or a URL")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	var (
		cfg *config.Config
		err error
	)
	if preset != "" {
		cfg, err = resolvePreset(ctx, w, preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .chatrelay directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .chatrelay directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Wrote %s from preset %s\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(cfger.GetTarget()),
		cliui.ValueStyle.Render(preset),
	)
	return nil
}

func resolvePreset(ctx context.Context, w io.Writer, preset string) (*config.Config, error) {
	if !strings.HasPrefix(preset, "http://") && !strings.HasPrefix(preset, "https://") {
		return config.PresetConfig(preset)
	}

	var cfg *config.Config
	err := cliui.Step(w, "Fetching "+preset, func() error {
		var ferr error
		cfg, ferr = fetchRemoteConfig(ctx, preset)
		return ferr
	})
	return cfg, err
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfigBytes))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
