// Package migrations embeds the PostgreSQL schema of the server change log.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
