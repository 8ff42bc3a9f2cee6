package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const listLongDesc string = `List all configuration values.

Keys are grouped by their TOML section. Unset keys are shown as <not set>.
With --plain every key is printed as key=value without styling.

Examples:
  chatrelay config list
  chatrelay config list --plain`

const listShortDesc string = "List all configuration values"

type listCommander struct {
	plain bool
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.OutOrStdout(), configDir)
		},
	}

	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print key=value lines without styling")
	return cmd
}

func (c *listCommander) run(w io.Writer, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := config.ValidConfigKeys()
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		if values[key], err = cfger.GetConfigValue(key); err != nil {
			return err
		}
	}

	if c.plain {
		for _, key := range keys {
			fmt.Fprintf(w, "%s=%s\n", key, values[key])
		}
		return nil
	}

	if cfger.Exists() {
		fmt.Fprintf(w, "Using config file: %s\n", cfger.GetTarget())
	} else {
		fmt.Fprintf(w, "No config file at %s. Using defaults.\n", cfger.GetTarget())
	}

	section := ""
	for _, key := range keys {
		prefix, name, _ := strings.Cut(key, ".")
		if prefix != section {
			section = prefix
			fmt.Fprintf(w, "\n%s\n", cliui.KeyStyle.Render("["+section+"]"))
		}

		if values[key] == "" {
			fmt.Fprintf(w, "  %s = %s\n", name, cliui.DimStyle.Render("<not set>"))
		} else {
			fmt.Fprintf(w, "  %s = %q\n", name, values[key])
		}
	}
	return nil
}
