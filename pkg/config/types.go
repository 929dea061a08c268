package config

import (
	"fmt"
	"time"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Client  ClientConfig `toml:"client"`
	Server  ServerConfig `toml:"server"`
}

// ClientConfig holds settings for the chat and health commands, which talk
// to a running backend.
type ClientConfig struct {
	// BaseURL is the backend prefix; the chat endpoint is BaseURL + "/chat".
	BaseURL string `toml:"base_url,omitempty"`

	// Timeout bounds a whole chat turn, as a Go duration string. "0"
	// disables it.
	Timeout string `toml:"timeout,omitempty"`

	// Greeting is the assistant message shown before the first turn.
	Greeting string `toml:"greeting,omitempty"`
}

// ServerConfig holds settings for the development backend.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`

	// ChunkDelay is the pause between two streamed chunks, as a Go duration
	// string.
	ChunkDelay string `toml:"chunk_delay,omitempty"`
}

// TimeoutDuration parses Timeout.
func (c ClientConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("client.timeout", c.Timeout)
}

// ChunkDelayDuration parses ChunkDelay.
func (c ServerConfig) ChunkDelayDuration() (time.Duration, error) {
	return parseDuration("server.chunk_delay", c.ChunkDelay)
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: must not be negative", key)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.base_url": {
		get: func(c *Config) string { return c.Client.BaseURL },
		set: func(c *Config, v string) error { c.Client.BaseURL = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := parseDuration("client.timeout", v); err != nil {
				return err
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"client.greeting": {
		get: func(c *Config) string { return c.Client.Greeting },
		set: func(c *Config, v string) error { c.Client.Greeting = v; return nil },
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.chunk_delay": {
		get: func(c *Config) string { return c.Server.ChunkDelay },
		set: func(c *Config, v string) error {
			if _, err := parseDuration("server.chunk_delay", v); err != nil {
				return err
			}
			c.Server.ChunkDelay = v
			return nil
		},
	},
}
