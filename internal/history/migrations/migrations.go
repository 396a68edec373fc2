// Package migrations embeds the goose migrations for the scan history DB.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
