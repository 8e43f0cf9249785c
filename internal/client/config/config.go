package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "OFFSYNC"
	defaultDataDir = ".offsync"
	defaultEnvFile = ".env"
)

// Config holds runtime settings for the offsync client.
type Config struct {
	ServerURL      string        `mapstructure:"server_url"`
	DataDir        string        `mapstructure:"data_dir"`
	DatabasePath   string        `mapstructure:"database_path"`
	BlobDir        string        `mapstructure:"blob_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	PushBatchSize  int           `mapstructure:"push_batch_size"`
	PullLimit      int           `mapstructure:"pull_limit"`
	Collection     string        `mapstructure:"collection"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RetryMax       time.Duration `mapstructure:"retry_max"`
	DeleteMode     string        `mapstructure:"delete_mode"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DataDir = ""
	c.DatabasePath = ""
	c.BlobDir = ""
	c.RequestTimeout = 30 * time.Second
	c.SyncInterval = 30 * time.Second
	c.PushBatchSize = 100
	c.PullLimit = 500
	c.Collection = "default"
	c.RetryBase = 2 * time.Second
	c.RetryMax = 5 * time.Minute
	c.DeleteMode = "hard"
	c.LogLevel = "warn"
	c.LogFormat = "auto"
}

// flag name -> config key
var flagKeys = map[string]string{
	"server":        "server_url",
	"data-dir":      "data_dir",
	"db":            "database_path",
	"blob-dir":      "blob_dir",
	"timeout":       "request_timeout",
	"sync-interval": "sync_interval",
	"push-batch":    "push_batch_size",
	"pull-limit":    "pull_limit",
	"collection":    "collection",
	"delete-mode":   "delete_mode",
	"log-level":     "log_level",
	"log-format":    "log_format",
}

// RegisterFlags adds the client's persistent flags to fs. Defaults shown in
// help come from LoadDefaults; a flag only overrides other sources when set.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.String("config", "", "path to config file (json, yaml or toml)")
	fs.String("env-file", defaultEnvFile, "path to .env file")
	fs.String("server", d.ServerURL, "base URL of the sync server")
	fs.String("data-dir", d.DataDir, "directory for local data (default ~/.offsync)")
	fs.String("db", d.DatabasePath, "path to the local database")
	fs.String("blob-dir", d.BlobDir, "directory for attachment payloads")
	fs.Duration("timeout", d.RequestTimeout, "request timeout")
	fs.Duration("sync-interval", d.SyncInterval, "background sync interval in the shell (0 disables)")
	fs.Int("push-batch", d.PushBatchSize, "outbox entries per push request")
	fs.Int("pull-limit", d.PullLimit, "changes per pull request")
	fs.String("collection", d.Collection, "remote collection (pull cursor key)")
	fs.String("delete-mode", d.DeleteMode, "how deletes are recorded: hard or soft")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", d.LogFormat, "log format: auto, text, json")
}

// Load builds a Config from defaults, the optional config file, the .env
// file, OFFSYNC_* variables and flags (in increasing precedence). flags may
// be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	var d Config
	d.LoadDefaults()
	setDefaults(v, &d)

	if err := loadEnvFile(flagString(flags, "env-file", defaultEnvFile)); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := flagString(flags, "config", ""); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("blob_dir", d.BlobDir)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("sync_interval", d.SyncInterval)
	v.SetDefault("push_batch_size", d.PushBatchSize)
	v.SetDefault("pull_limit", d.PullLimit)
	v.SetDefault("collection", d.Collection)
	v.SetDefault("retry_base", d.RetryBase)
	v.SetDefault("retry_max", d.RetryMax)
	v.SetDefault("delete_mode", d.DeleteMode)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// loadEnvFile loads path into the process environment if it exists.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func flagString(fs *pflag.FlagSet, name, def string) string {
	if fs == nil {
		return def
	}
	v, err := fs.GetString(name)
	if err != nil {
		return def
	}
	return v
}

func (c *Config) resolvePaths() {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataDir = filepath.Join(home, defaultDataDir)
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "offsync.db")
	}
	if c.BlobDir == "" {
		c.BlobDir = filepath.Join(c.DataDir, "blobs")
	}
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	if c.PushBatchSize <= 0 {
		return fmt.Errorf("push_batch_size must be positive, got %d", c.PushBatchSize)
	}
	if c.PullLimit <= 0 {
		return fmt.Errorf("pull_limit must be positive, got %d", c.PullLimit)
	}
	if c.Collection == "" {
		return errors.New("collection must not be empty")
	}
	if c.RetryBase <= 0 || c.RetryMax < c.RetryBase {
		return fmt.Errorf("invalid retry window %s..%s", c.RetryBase, c.RetryMax)
	}
	if c.DeleteMode != "hard" && c.DeleteMode != "soft" {
		return fmt.Errorf("delete_mode must be hard or soft, got %q", c.DeleteMode)
	}
	return nil
}
