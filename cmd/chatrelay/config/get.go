package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const getLongDesc string = `Get one or more configuration values.

Values come from config.toml in the .chatrelay/ directory, falling back to the
built-in defaults. With --raw only the values are printed, one per line, with
an empty line for an unset key.

Examples:
  chatrelay config get upstream.base_url
  chatrelay config get client.model client.buffer_length
  chatrelay config get --raw upstream.timeout`

const getShortDesc string = "Get configuration values"

type getCommander struct {
	raw bool
}

func newGetCmd() *cobra.Command {
	cmder := &getCommander{}

	cmd := &cobra.Command{
		Use:   "get <key>...",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.OutOrStdout(), configDir, args)
		},
		ValidArgsFunction: validKeysCompletion,
	}

	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print bare values for scripting")
	return cmd
}

func (c *getCommander) run(w io.Writer, configDir string, keys []string) error {
	for _, key := range keys {
		if !config.IsValidConfigKey(key) {
			return unknownKeyError(key)
		}
	}

	var (
		cfger *config.Configer
		err   error
	)
	if c.raw {
		cfger, err = config.NewConfiger(configDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else if cfger, err = openConfig(w, configDir); err != nil {
		return err
	}

	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}

		switch {
		case c.raw:
			fmt.Fprintln(w, value)
		case value == "":
			fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(key), cliui.DimStyle.Render("<not set>"))
		default:
			fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(key), cliui.ValueStyle.Render(value))
		}
	}
	if !c.raw {
		fmt.Fprintln(w)
	}
	return nil
}
