package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBridgePath is the Socket.IO path used when none is configured.
	DefaultBridgePath = "/bridge"
	// DefaultCallTimeout bounds a bridge call that has no context deadline.
	DefaultCallTimeout = 15 * time.Second
	// FileName is the optional YAML config file inside RuntimeHome.
	FileName = "config.yaml"
)

type Config struct {
	// BridgeURL is the base URL of the backend bridge. Empty means no network
	// bridge is configured and the transport starts unavailable.
	BridgeURL string `yaml:"bridge_url"`
	// BridgePath is the Socket.IO path on the bridge server.
	BridgePath string `yaml:"bridge_path"`
	// Token is an optional bearer token sent in the bridge handshake.
	Token string `yaml:"token"`

	// CommandIndex selects the backend-defined run command for project.start.
	CommandIndex int `yaml:"command"`
	// CallTimeout bounds bridge calls issued without a deadline.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// SyncOnConnect asks the backend for already-running projects at connect.
	SyncOnConnect bool `yaml:"sync_on_connect"`

	// RuntimeHome is the directory where runtty keeps local files.
	RuntimeHome string `yaml:"-"`
	// LogLevel is the logger threshold name (trace|debug|info|warn|error).
	LogLevel string `yaml:"log_level"`
	// Debug forces debug logging regardless of LogLevel.
	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		BridgePath:    DefaultBridgePath,
		CallTimeout:   DefaultCallTimeout,
		SyncOnConnect: true,
		LogLevel:      "info",
	}
}

// Load loads configuration from defaults, the optional config file and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	home := os.Getenv("RUNTTY_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".runtty")
	}

	cfg := Default()
	if err := cfg.loadFile(filepath.Join(home, FileName)); err != nil {
		return nil, err
	}
	cfg.RuntimeHome = home

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save creates RuntimeHome (currently the only on-disk state).
func (c *Config) Save() error {
	return os.MkdirAll(c.RuntimeHome, 0700)
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.CommandIndex < 0 {
		return fmt.Errorf("invalid command index %d (must be >= 0)", c.CommandIndex)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("invalid call timeout %s", c.CallTimeout)
	}
	if c.BridgeURL != "" && !strings.HasPrefix(c.BridgeURL, "http://") &&
		!strings.HasPrefix(c.BridgeURL, "https://") {
		return fmt.Errorf("invalid bridge url %q (expected http:// or https://)", c.BridgeURL)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if c.BridgePath == "" {
		c.BridgePath = DefaultBridgePath
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RUNTTY_BRIDGE_URL"); v != "" {
		c.BridgeURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("RUNTTY_BRIDGE_PATH"); v != "" {
		c.BridgePath = v
	}
	if v := os.Getenv("RUNTTY_TOKEN"); v != "" {
		c.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("RUNTTY_COMMAND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RUNTTY_COMMAND %q: %w", v, err)
		}
		c.CommandIndex = n
	}
	if v := os.Getenv("RUNTTY_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RUNTTY_CALL_TIMEOUT %q: %w", v, err)
		}
		c.CallTimeout = d
	}
	if v := os.Getenv("RUNTTY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if isTrue(os.Getenv("RUNTTY_NO_SYNC")) {
		c.SyncOnConnect = false
	}
	if isTrue(os.Getenv("DEBUG")) || isTrue(os.Getenv("RUNTTY_DEBUG")) {
		c.Debug = true
	}
	return nil
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}
