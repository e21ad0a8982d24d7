// Package config loads the operator-facing parameters (spec §6): the index
// path, the sync routing config or a single sync-repo path, the periodic
// sync interval, and embedding provider selection. Flags > environment
// variables > config file > defaults, the same precedence chain the
// teacher's own config package establishes with viper.
//
// Grounded on untoldecay-BeadsLog's internal/config/config.go: a package
// level viper.Viper singleton, SetEnvPrefix + SetEnvKeyReplacer for
// flag-name-to-env-var mapping, config-file search by walking up from the
// working directory before falling back to the user config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSyncIntervalSeconds is the periodic sync interval if unset (spec
// §6: "a periodic sync interval (default 300s, 0 disables)").
const DefaultSyncIntervalSeconds = 300

// Config is the fully resolved operator configuration.
type Config struct {
	IndexPath        string
	RoutingPath      string
	SyncRepoPath     string
	SyncIntervalSecs int
	EmbeddingProvider string // "none" | "anthropic"
	AnthropicAPIKey  string
	LogPath          string
	LogLevel         string
}

// Load resolves configuration from, in increasing precedence: built-in
// defaults, a config file (.kbd/config.yaml in the working directory or
// any parent, then kbd/config.yaml in the user config dir; the home dir is
// not searched), environment variables prefixed KBD_, and finally
// any values already set in v by the caller (e.g. bound cobra flags).
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetConfigType("yaml")
	configFileSet := locateConfigFile(v)

	v.SetEnvPrefix("KBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("index-path", defaultIndexPath())
	v.SetDefault("routing-path", "")
	v.SetDefault("sync-repo-path", "")
	v.SetDefault("sync-interval-seconds", DefaultSyncIntervalSeconds)
	v.SetDefault("embedding-provider", "none")
	v.SetDefault("anthropic-api-key", "")
	v.SetDefault("log-path", "")
	v.SetDefault("log-level", "info")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg := &Config{
		IndexPath:         v.GetString("index-path"),
		RoutingPath:       v.GetString("routing-path"),
		SyncRepoPath:      v.GetString("sync-repo-path"),
		SyncIntervalSecs:  v.GetInt("sync-interval-seconds"),
		EmbeddingProvider: v.GetString("embedding-provider"),
		AnthropicAPIKey:   v.GetString("anthropic-api-key"),
		LogPath:           v.GetString("log-path"),
		LogLevel:          v.GetString("log-level"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the resolved configuration is internally consistent.
func (c *Config) Validate() error {
	if c.IndexPath == "" {
		return fmt.Errorf("config: index-path must not be empty")
	}
	if c.RoutingPath == "" && c.SyncRepoPath == "" {
		return fmt.Errorf("config: one of routing-path or sync-repo-path must be set")
	}
	if c.RoutingPath != "" && c.SyncRepoPath != "" {
		return fmt.Errorf("config: routing-path and sync-repo-path are mutually exclusive")
	}
	if c.SyncIntervalSecs < 0 {
		return fmt.Errorf("config: sync-interval-seconds must be >= 0")
	}
	switch c.EmbeddingProvider {
	case "none", "anthropic":
	default:
		return fmt.Errorf("config: unknown embedding-provider %q", c.EmbeddingProvider)
	}
	return nil
}

// SyncInterval converts SyncIntervalSecs to a Duration; zero disables
// periodic sync entirely (spec §6).
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSecs) * time.Second
}

func locateConfigFile(v *viper.Viper) bool {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			path := filepath.Join(dir, ".kbd", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				return true
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(configDir, "kbd", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			return true
		}
	}
	return false
}

func defaultIndexPath() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "kbd", "index.db")
	}
	return ".kbd/index.db"
}
