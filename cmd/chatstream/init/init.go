// Package initcmder provides the init command for initializing a local
// .chatstream directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

const (
	configFile = "config.toml"

	remoteTimeout   = 10 * time.Second
	maxRemoteConfig = 1 << 20
)

const initLongDesc string = `Initialize a new .chatstream/ directory in the current working directory.

Creates a local .chatstream/ directory, with a config.toml inside it, that
takes precedence over the default ~/.chatstream/ directory. This is useful
for keeping separate backend settings per project.

The --preset flag selects the config.toml to write. It is either a named
preset or an http(s) URL serving a config.toml:
  local    backend on http://localhost:8000/api (default)
  nginx    backend behind a reverse proxy on http://localhost/api

Re-running init keeps an existing config.toml unless --preset is given.

Examples:
  chatstream init
  chatstream init --preset nginx
  chatstream init --preset https://example.com/chatstream.toml`

const initShortDesc string = "Initialize a local .chatstream/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Named preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)
	path := filepath.Join(dir, configFile)

	// Resolve the config before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	if preset != "" {
		cfg, err = resolvePreset(ctx, preset)
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(dir)
	existed := err == nil && info.IsDir()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .chatstream directory: %w", err)
	}

	if cfg == nil {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(w, "Already initialized: %s\n", dir)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
		cfg = config.NewDefaultConfig()
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	if existed {
		fmt.Fprintf(w, "%s Wrote %s\n", cliui.SuccessMark, cfger.GetTarget())
	} else {
		fmt.Fprintf(w, "%s Initialized .chatstream directory: %s\n", cliui.SuccessMark, dir)
	}
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(ctx, preset)
	}
	return config.PresetConfig(preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
