// Package migrations embeds the SafeWalk schema so the binary can migrate
// without the SQL files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
