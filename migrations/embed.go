// Package migrations embeds the KG-store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
