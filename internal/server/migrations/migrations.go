// Package migrations embeds the goose SQL migrations owning the authd schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
