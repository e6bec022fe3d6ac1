package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := make(fstest.MapFS, len(files))
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

var twoStepSchema = map[string]string{
	"0001_component_state.sql": `
		CREATE TABLE component_state (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		) STRICT;`,
	"0002_state_index.sql": `
		CREATE INDEX component_state_kind ON component_state (kind);`,
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

// ─── Migrate ────────────────────────────────────────────────────────────────

func TestMigrateAppliesAllSteps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, migrationFS(twoStepSchema)); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	if !tableExists(t, db, "component_state") {
		t.Error("component_state table missing after migrate")
	}
	if v, _ := db.SchemaVersion(ctx); v != 2 {
		t.Errorf("SchemaVersion() = %d, want 2", v)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := migrationFS(twoStepSchema)

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("first Migrate() error: %v", err)
	}
	// A second run must not re-execute the CREATE statements.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 2 {
		t.Errorf("SchemaVersion() = %d, want 2", v)
	}
}

func TestMigratePicksUpNewSteps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := migrationFS(map[string]string{
		"0001_component_state.sql": twoStepSchema["0001_component_state.sql"],
	})
	if err := db.Migrate(ctx, first); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 1 {
		t.Fatalf("SchemaVersion() = %d, want 1", v)
	}

	// Ship the next step and re-run.
	if err := db.Migrate(ctx, migrationFS(twoStepSchema)); err != nil {
		t.Fatalf("Migrate() with new step error: %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 2 {
		t.Errorf("SchemaVersion() = %d, want 2", v)
	}
}

func TestMigrateFailingStepRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := migrationFS(map[string]string{
		"0001_component_state.sql": twoStepSchema["0001_component_state.sql"],
		"0002_broken.sql":          "CREATE TABLE broken (nonsense syntax here;",
	})

	err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() with broken SQL did not fail")
	}
	if !strings.Contains(err.Error(), "0002_broken") {
		t.Errorf("error %q does not name the failing step", err)
	}

	// Step one stays committed, the broken step is not recorded.
	if !tableExists(t, db, "component_state") {
		t.Error("earlier step was rolled back")
	}
	if v, _ := db.SchemaVersion(ctx); v != 1 {
		t.Errorf("SchemaVersion() = %d, want 1", v)
	}
}

func TestMigrateRejectsMalformedNames(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"schema.sql", "abc_schema.sql", "0000_schema.sql"} {
		fsys := migrationFS(map[string]string{name: "SELECT 1;"})
		if err := db.Migrate(ctx, fsys); err == nil {
			t.Errorf("Migrate() accepted malformed name %q", name)
		}
	}
}

func TestMigrateRejectsDuplicateVersions(t *testing.T) {
	db := openTestDB(t)

	fsys := migrationFS(map[string]string{
		"0001_first.sql":  "SELECT 1;",
		"0001_second.sql": "SELECT 1;",
	})
	if err := db.Migrate(context.Background(), fsys); err == nil {
		t.Error("Migrate() accepted two files with version 1")
	}
}

func TestSchemaVersionFreshDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, migrationFS(nil)); err != nil {
		t.Fatalf("Migrate() with no steps error: %v", err)
	}
	if v, err := db.SchemaVersion(ctx); err != nil || v != 0 {
		t.Errorf("SchemaVersion() = %d, %v; want 0, nil", v, err)
	}
}
