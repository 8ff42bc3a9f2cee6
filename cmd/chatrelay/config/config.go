// Package configcmder provides the config command for managing persistent
// chatrelay configuration stored in the .chatrelay/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const configLongDesc string = `Manage persistent chatrelay configuration.

Configuration is stored as config.toml in the .chatrelay/ directory and provides
default values for command flags. Environment variables (CHATRELAY_*) and CLI
flags take precedence over config file values. The upstream access token is
never stored here.

Keys use dotted notation matching the TOML section structure:
  upstream.base_url, upstream.project, upstream.timeout,
  upstream.token_header, upstream.project_header,
  server.listen, server.log_file, server.debug_http,
  server.debug_http_body, server.debug_upstream,
  client.target, client.model, client.assistant_id,
  client.buffer_length, client.hidden,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  chatrelay config set <key> <value>    Set a configuration value
  chatrelay config get <key>            Get a configuration value
  chatrelay config list                 List all configuration values

Examples:
  chatrelay config set upstream.base_url https://chat.example.com/api/v2
  chatrelay config set client.model gpt-4o
  chatrelay config get upstream.timeout
  chatrelay config list`

const configShortDesc string = "Manage persistent chatrelay configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validKeysCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

// openConfig resolves the config file and prints where it lives.
func openConfig(w io.Writer, configDir string) (*config.Configer, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfger.Exists() {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(cfger.GetTarget()),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file yet. Using defaults."))
	}

	return cfger, nil
}
