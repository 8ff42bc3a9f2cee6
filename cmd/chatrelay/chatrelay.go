// Package chatrelaycmder is the root chatrelay command.
package chatrelaycmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/chat"
	configcmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/config"
	initcmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/init"
	modelscmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/models"
	servecmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/serve"
	versioncmder "github.com/papercomputeco/chatrelay/cmd/version"
)

const chatrelayLongDesc string = `chatrelay relays streaming chat completions from a remote chat service.

Run the relay and talk to it:
  chatrelay serve      Run the proxy server
  chatrelay chat       Chat interactively through a running relay
  chatrelay models     List the models a relay offers`

const chatrelayShortDesc string = "chatrelay - streaming chat relay"

func NewChatrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatrelay",
		Short:        chatrelayShortDesc,
		Long:         chatrelayLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.chatrelay or ~/.chatrelay)")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
