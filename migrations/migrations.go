// Package migrations embeds the SQL migrations shipped with the server binary.
package migrations

import "embed"

//go:embed postgres/*.sql
var FS embed.FS
