package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, 100, c.PushBatchSize)
	assert.Equal(t, 500, c.PullLimit)
	assert.Equal(t, "default", c.Collection)
	assert.Equal(t, 2*time.Second, c.RetryBase)
	assert.Equal(t, 5*time.Minute, c.RetryMax)
	assert.Equal(t, "hard", c.DeleteMode)
	assert.NoError(t, c.Validate())
}

func TestLoad_DefaultsAndDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags(t, "--data-dir", dir, "--env-file", "")

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "offsync.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dir, "blobs"), cfg.BlobDir)
	assert.Equal(t, 100, cfg.PushBatchSize)
}

func TestLoad_NilFlags(t *testing.T) {
	t.Setenv("OFFSYNC_DATA_DIR", t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.PullLimit)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "offsync.yaml", `
server_url: http://from-file:1
push_batch_size: 10
pull_limit: 20
sync_interval: 1m
collection: from-file
`)

	t.Setenv("OFFSYNC_PUSH_BATCH_SIZE", "7")
	t.Setenv("OFFSYNC_RETRY_BASE", "1s")

	fs := newFlags(t, "--config", cfgFile, "--data-dir", dir, "--env-file", "", "--pull-limit", "3")

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:1", cfg.ServerURL, "file beats default")
	assert.Equal(t, 7, cfg.PushBatchSize, "env beats file")
	assert.Equal(t, 3, cfg.PullLimit, "flag beats file")
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, time.Second, cfg.RetryBase)
	assert.Equal(t, "from-file", cfg.Collection)
}

func TestLoad_JSONFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "offsync.json", `{"delete_mode":"soft","request_timeout":"5s"}`)

	cfg, err := Load(newFlags(t, "--config", cfgFile, "--data-dir", dir, "--env-file", ""))
	require.NoError(t, err)
	assert.Equal(t, "soft", cfg.DeleteMode)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "OFFSYNC_COLLECTION=from-dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("OFFSYNC_COLLECTION") })

	cfg, err := Load(newFlags(t, "--env-file", envFile, "--data-dir", dir))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Collection)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(newFlags(t, "--env-file", filepath.Join(dir, "nope.env"), "--data-dir", dir))
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load(newFlags(t, "--config", filepath.Join(dir, "missing.yaml"), "--data-dir", dir, "--env-file", ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("invalid delete mode", func(t *testing.T) {
		_, err := Load(newFlags(t, "--delete-mode", "shred", "--data-dir", dir, "--env-file", ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete_mode")
	})

	t.Run("non-positive batch", func(t *testing.T) {
		_, err := Load(newFlags(t, "--push-batch", "0", "--data-dir", dir, "--env-file", ""))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "empty server", mutate: func(c *Config) { c.ServerURL = "" }},
		{name: "zero pull limit", mutate: func(c *Config) { c.PullLimit = 0 }},
		{name: "empty collection", mutate: func(c *Config) { c.Collection = "" }},
		{name: "retry max below base", mutate: func(c *Config) { c.RetryMax = time.Millisecond }},
		{name: "soft delete", mutate: func(c *Config) { c.DeleteMode = "soft" }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}
