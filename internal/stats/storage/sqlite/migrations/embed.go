// Package migrations embeds the SQLite schema for usage analytics storage.
package migrations

import "embed"

// FS contains embedded SQLite migrations for usage analytics storage.
//
//go:embed *.sql
var FS embed.FS
