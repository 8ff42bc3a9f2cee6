// Package modelscmder provides the models command that lists the models a
// running chatrelay server offers.
package modelscmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatrelay/pkg/chatclient"
	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const requestTimeout = 30 * time.Second

const modelsLongDesc string = `List the models offered by a running chatrelay server.

The upstream model list is normalized to plain names whether it arrives as a
bare array, a {"data": [...]} object or a {"models": [...]} object.

Examples:
  chatrelay models
  chatrelay models --target http://localhost:8787`

const modelsShortDesc string = "List available models"

func NewModelsCmd() *cobra.Command {
	var (
		target string
		v      *viper.Viper
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			var err error
			v, err = config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTarget})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			client := chatclient.New(v.GetString("client.target"))
			return runModels(ctx, cmd.OutOrStdout(), client)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &target)

	return cmd
}

func runModels(ctx context.Context, w io.Writer, client *chatclient.Client) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
		return fmt.Errorf("listing models: %w", err)
	}

	if len(models) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No models available."))
		return nil
	}

	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Models:"),
		cliui.DimStyle.Render(fmt.Sprintf("(%d)", len(models))),
	)
	for _, m := range models {
		fmt.Fprintf(w, "  %s\n", cliui.NameStyle.Render(m))
	}
	fmt.Fprintln(w)

	return nil
}
