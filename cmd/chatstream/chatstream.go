// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	configcmder "github.com/papercomputeco/chatstream/cmd/chatstream/config"
	healthcmder "github.com/papercomputeco/chatstream/cmd/chatstream/health"
	initcmder "github.com/papercomputeco/chatstream/cmd/chatstream/init"
	servecmder "github.com/papercomputeco/chatstream/cmd/chatstream/serve"
	versioncmder "github.com/papercomputeco/chatstream/cmd/version"
)

const chatstreamLongDesc string = `chatstream is a terminal client for streaming chat assistants.

It sends each message to a chat backend and renders the reply as it is
streamed back over server-sent events.

Get started using:
  chatstream serve     Run the development chat backend
  chatstream chat      Chat with a backend
  chatstream health    Check that a backend is up`

const chatstreamShortDesc string = "chatstream - Streaming chat client"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatstream",
		Short:        chatstreamShortDesc,
		Long:         chatstreamLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chatstream directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(healthcmder.NewHealthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
