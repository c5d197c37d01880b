// Package migrations embeds the SQL schema migrations, applied in file name
// order (001_init.sql, 002_...).
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
