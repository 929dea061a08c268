// Package chatcmder provides the chat command for talking to a streaming chat
// backend from the terminal.
package chatcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

type chatCommander struct {
	baseURL    string
	timeout    time.Duration
	greeting   string
	noGreeting bool
	record     string
	logFile    string
	plain      bool
	debug      bool
}

const chatLongDesc string = `Start an interactive chat session with a streaming chat backend.

Each message is posted to <base-url>/chat and the reply is rendered as it
streams back. The backend session id returned with the first reply is sent
with every following message so the conversation keeps its context.

When stdin and stdout are terminals a full-screen interface is used:
  enter     send the message
  esc       stop the reply being streamed
  ctrl+c    quit

Otherwise, or with --plain, chat reads one message per line from stdin and
prints the transcript to stdout. Type /exit or press Ctrl+D to quit.

Flags fall back to CHATSTREAM_CLIENT_* environment variables, then to the
[client] section of config.toml.

Examples:
  chatstream chat
  chatstream chat --base-url http://localhost/api
  echo "Where is order 1234?" | chatstream chat --no-greeting
  chatstream chat --record session.sse --log-file chat.log`

const chatShortDesc string = "Chat with a streaming chat backend"

var chatFlags = []string{
	config.FlagBaseURL,
	config.FlagTimeout,
	config.FlagGreeting,
}

func NewChatCmd() *cobra.Command {
	return newChatCmd(&chatCommander{})
}

func newChatCmd(cmder *chatCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)

			client := config.ClientConfig{
				BaseURL:  v.GetString("client.base_url"),
				Timeout:  v.GetString("client.timeout"),
				Greeting: v.GetString("client.greeting"),
			}
			cmder.baseURL = client.BaseURL
			cmder.greeting = client.Greeting
			cmder.timeout, err = client.TimeoutDuration()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, os.Stdin, cmd.OutOrStdout())
		},
	}

	var baseURL, greeting string
	var timeout time.Duration
	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &baseURL)
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagGreeting, &greeting)
	cmd.Flags().BoolVar(&cmder.noGreeting, "no-greeting", false, "Start without the assistant greeting")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Write the raw event stream of every reply to this file")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Write JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use line mode even on a terminal")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in *os.File, out io.Writer) error {
	interactive := term.IsTerminal(int(in.Fd()))
	tui := interactive && !c.plain && isTerminal(out)

	log, closeLog, err := c.newLogger(tui)
	if err != nil {
		return err
	}
	defer closeLog()

	client, closeRecord, err := c.newClient(log)
	if err != nil {
		return err
	}
	defer closeRecord()

	if tui {
		return runTUI(ctx, client)
	}
	return runLines(ctx, client, in, out, interactive)
}

func (c *chatCommander) newClient(log *slog.Logger) (*chat.Client, func(), error) {
	var opts []conversation.Option
	if !c.noGreeting && c.greeting != "" {
		opts = append(opts, conversation.WithGreeting(c.greeting))
	}
	store := conversation.NewStore(opts...)

	cfg := chat.Config{
		BaseURL: c.baseURL,
		Timeout: c.timeout,
		Logger:  log,
	}

	closeRecord := func() {}
	if c.record != "" {
		f, err := os.Create(c.record)
		if err != nil {
			return nil, nil, fmt.Errorf("creating record file: %w", err)
		}
		cfg.Record = f
		closeRecord = func() { _ = f.Close() }
	}

	client, err := chat.New(store, cfg)
	if err != nil {
		closeRecord()
		return nil, nil, err
	}
	return client, closeRecord, nil
}

// newLogger keeps the full-screen interface clean: without --log-file it
// logs nothing there, while line mode logs to stderr.
func (c *chatCommander) newLogger(tui bool) (*slog.Logger, func(), error) {
	if c.logFile != "" {
		log, closeFile, err := logger.OpenFile(c.logFile, c.debug)
		if err != nil {
			return nil, nil, err
		}
		return log, func() { _ = closeFile() }, nil
	}

	if tui {
		return logger.Nop(), func() {}, nil
	}

	return logger.Console(os.Stderr, c.debug), func() {}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
