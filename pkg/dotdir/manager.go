// Package dotdir resolves the .chatstream/ directory holding config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the chatstream directory.
	DirName = ".chatstream"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .chatstream/ directory.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. Local ./.chatstream/ dir
//  3. Home ~/.chatstream/ dir
//
// When no override is given and neither directory exists, Target returns an
// empty path: callers fall back to defaults and nothing is created.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating chatstream directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if local := filepath.Join(cwd, DirName); isDir(local) {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory is not fatal: defaults still apply.
		return "", nil
	}
	if global := filepath.Join(home, DirName); isDir(global) {
		return global, nil
	}

	return "", nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
