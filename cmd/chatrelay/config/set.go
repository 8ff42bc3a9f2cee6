package configcmder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Writes the key to config.toml in the .chatrelay/ directory. The value may be
given as a second argument or joined to the key with "=". Values are
validated: durations for upstream.timeout, booleans for the debug and hidden
keys, a positive integer for client.buffer_length and "none" or "kafka" for
eventstream.provider.

Examples:
  chatrelay config set upstream.base_url https://chat.example.com/api/v2
  chatrelay config set upstream.timeout=90s
  chatrelay config set eventstream.provider kafka`

const setShortDesc string = "Set a configuration value"

var errSetArgs = errors.New("expected <key> <value> or <key>=<value>")

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value> | <key>=<value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value, err := splitSetArgs(args)
			if err != nil {
				return err
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), key, value, configDir)
		},
		ValidArgsFunction: validKeysCompletion,
	}

	return cmd
}

func splitSetArgs(args []string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	key, value, ok := strings.Cut(args[0], "=")
	if !ok || key == "" {
		return "", "", errSetArgs
	}
	return key, value, nil
}

func runSet(w io.Writer, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := openConfig(w, configDir)
	if err != nil {
		return err
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
