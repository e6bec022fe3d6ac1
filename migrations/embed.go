// Package migrations carries the schema as embedded SQL, one numbered
// NNNN_description.sql file per schema change. The files ship inside
// the binary, so a deployment never depends on loose .sql files.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// Files returns the embedded migration set, ready to hand to
// database.Migrate.
func Files() fs.FS { return files }
