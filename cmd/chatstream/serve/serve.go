// Package servecmder provides the serve command, which runs the development
// chat backend.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

type serveCommander struct {
	listen     string
	chunkDelay time.Duration
	logFile    string
	debug      bool

	logger *slog.Logger
}

const serveLongDesc string = `Run the development chat backend.

The backend serves the same HTTP API a production assistant does:
  POST /api/chat     Streams a reply as server-sent events
  GET  /api/health   Reports {"status":"healthy"}

Replies echo the message back one word at a time, so "chatstream chat"
can be exercised end to end without a real model behind it.

Flags fall back to CHATSTREAM_SERVER_* environment variables, then to
the [server] section of config.toml.

Examples:
  chatstream serve
  chatstream serve --listen 127.0.0.1:9000 --chunk-delay 0s
  chatstream serve --log-file backend.log`

const serveShortDesc string = "Run the development chat backend"

var serveFlags = []string{
	config.FlagListen,
	config.FlagChunkDelay,
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			cmder.listen = v.GetString("server.listen")
			cmder.chunkDelay, err = config.ServerConfig{ChunkDelay: v.GetString("server.chunk_delay")}.ChunkDelayDuration()
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

			return cmder.run(ctx, nil)
		},
	}

	var listen string
	var chunkDelay time.Duration
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
	config.AddDurationFlag(cmd, config.Flags, config.FlagChunkDelay, &chunkDelay)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

// run serves until ctx is done or the server fails. A nil listener binds
// c.listen.
func (c *serveCommander) run(ctx context.Context, listener net.Listener) error {
	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	server := backend.NewServer(backend.Config{
		ListenAddr: c.listen,
		ChunkDelay: c.chunkDelay,
	}, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if listener != nil {
			errChan <- server.RunWithListener(listener)
			return
		}
		errChan <- server.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("chat backend error: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.logger.Info("shutting down chat backend")
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("shutting down chat backend: %w", err)
		}
		return nil
	}
}

// newLogger returns a pretty stderr logger, fanned out to a JSON log file
// when --log-file is set. The returned func closes the file.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	console := logger.Console(os.Stderr, c.debug)
	if c.logFile == "" {
		return console, func() {}, nil
	}

	structured, closeFile, err := logger.OpenFile(c.logFile, c.debug)
	if err != nil {
		return nil, nil, err
	}
	return logger.Multi(console, structured), func() { _ = closeFile() }, nil
}
