package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/offsync/internal/flagx"
	"github.com/dmitrijs2005/offsync/internal/timex"
)

// ConfigEnv names the environment variable consulted when no -c/-config
// flag is given.
const ConfigEnv = "OFFSYNC_SERVER_CONFIG"

// JsonConfig is the on-disk shape of the server configuration. Durations use
// timex.Duration so both "10s" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr        string         `json:"http_addr"`
	PublicURL       string         `json:"public_url"`
	ChangeLog       string         `json:"change_log"`
	DatabaseDSN     string         `json:"database_dsn"`
	BlobStore       string         `json:"blob_store"`
	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
	MaxUploadSize   int64          `json:"max_upload_size"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
	LogLevel        string         `json:"log_level"`
	LogFormat       string         `json:"log_format"`
}

// parseJson overlays values from a JSON file onto config. The path comes
// from -c/-config or, failing that, from OFFSYNC_SERVER_CONFIG. Keys missing
// from the file keep their current value. An unreadable or invalid file
// panics, as a half-applied configuration is worse than none.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:], ConfigEnv)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.PublicURL, c.PublicURL)
	setString(&config.ChangeLog, c.ChangeLog)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.BlobStore, c.BlobStore)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
