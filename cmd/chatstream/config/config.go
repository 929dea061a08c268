// Package configcmder provides the config command for managing persistent
// chatstream configuration stored in the .chatstream/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chatstream configuration.

Configuration is stored as config.toml in the .chatstream/ directory and
provides default values for command flags. CLI flags and CHATSTREAM_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.base_url, client.timeout, client.greeting,
  server.listen, server.chunk_delay

Use subcommands to get, set, or list configuration values:
  chatstream config set <key> <value>    Set a configuration value
  chatstream config get <key>            Get a configuration value
  chatstream config list                 List all configuration values

Examples:
  chatstream config set client.base_url http://localhost:8000/api
  chatstream config set server.chunk_delay 100ms
  chatstream config get client.timeout
  chatstream config list`

const configShortDesc string = "Manage persistent chatstream configuration"

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
