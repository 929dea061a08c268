// Package healthcmder provides the health command, which checks that a chat
// backend is reachable and reports itself healthy.
package healthcmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

const defaultHealthTimeout = 10 * time.Second

type healthCommander struct {
	baseURL string
	timeout time.Duration
}

const healthLongDesc string = `Check that a chat backend is up.

Calls GET <base-url>/health and succeeds when the backend answers
{"status":"healthy"}.

Examples:
  chatstream health
  chatstream health --base-url http://localhost/api`

const healthShortDesc string = "Check that a chat backend is up"

func NewHealthCmd() *cobra.Command {
	cmder := &healthCommander{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: healthShortDesc,
		Long:  healthLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagBaseURL})

			cmder.baseURL = v.GetString("client.base_url")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	var baseURL string
	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &baseURL)
	cmd.Flags().DurationVar(&cmder.timeout, "wait", defaultHealthTimeout, "How long to wait for the backend to answer")

	return cmd
}

func (c *healthCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client, err := chat.New(conversation.NewStore(), chat.Config{
		BaseURL: c.baseURL,
	})
	if err != nil {
		return err
	}

	return cliui.Step(w, fmt.Sprintf("Checking %s", cliui.ValueStyle.Render(c.baseURL)), func() error {
		return client.Health(ctx)
	})
}
