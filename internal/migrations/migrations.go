// Package migrations embeds the SQL migration ladder of the local store.
//
// Files are applied in version order by goose; each file only creates what is
// missing, so a store opened at any earlier version converges on the same
// schema as a fresh one.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
