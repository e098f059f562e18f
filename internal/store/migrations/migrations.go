// Package migrations embeds the goose schema migrations for the SQL stores.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var Migrations embed.FS
