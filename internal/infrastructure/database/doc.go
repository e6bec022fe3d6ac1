// Package database owns the node's SQLite file: opening it with WAL
// mode and a single-connection pool, bringing the schema up to date
// from an embedded migration set, and answering health checks.
//
// The schema only moves forward. Migrations are numbered
// NNNN_description.sql files applied strictly in order, each in its
// own transaction; there is no down path, a bad step is corrected by
// the next one.
package database
