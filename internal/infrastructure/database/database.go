package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPerm  = 0o750
	filePerm = 0o600

	// openPingTimeout bounds the connectivity check Open runs before
	// handing the handle back.
	openPingTimeout = 5 * time.Second
)

// Config mirrors the database section of the YAML config.
type Config struct {
	// Path is the SQLite file. Its directory is created on first open.
	Path string

	// WALMode turns on write-ahead logging so reads proceed during writes.
	WALMode bool

	// BusyTimeout is how long, in seconds, a statement waits on a lock
	// before failing with "database is locked".
	BusyTimeout int
}

// DB is an open SQLite handle. The embedded sql.DB carries the full
// query surface; this wrapper owns opening, schema migration and
// health probing.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite file at cfg.Path and
// verifies it answers a ping before returning.
//
// The pool is pinned to a single connection. SQLite allows one writer
// at a time, and funnelling every caller through one connection turns
// would-be SQLITE_BUSY errors into ordinary queueing.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*int(time.Second/time.Millisecond))
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{DB: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Owner-only on the file itself. Ignored when the first write has
	// not created it yet.
	_ = os.Chmod(cfg.Path, filePerm)

	return db, nil
}

// Path returns the filesystem path of the database file.
func (db *DB) Path() string { return db.path }

// Close releases the underlying handle. Safe to call on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to confirm the file is readable.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}
