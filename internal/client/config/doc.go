// Package config loads runtime configuration for the offsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file given with --config (JSON, YAML or TOML, chosen
//     by extension).
//  3. A .env file in the working directory (or --env-file), loaded with
//     godotenv; variables already set in the environment win.
//  4. Environment variables with the OFFSYNC_ prefix, e.g.
//     OFFSYNC_SERVER_URL or OFFSYNC_PUSH_BATCH_SIZE.
//  5. Command-line flags registered with RegisterFlags, when set explicitly.
//
// Durations accept time.ParseDuration strings ("30s", "5m").
//
// Derived paths: DatabasePath and BlobDir default to files under DataDir,
// and DataDir defaults to ~/.offsync.
package config
