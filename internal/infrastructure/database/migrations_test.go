package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_events.up.sql": {Data: []byte(
			"CREATE TABLE test_events (id TEXT PRIMARY KEY, kind TEXT NOT NULL);",
		)},
		"20260102_000000_event_source.up.sql": {Data: []byte(
			"ALTER TABLE test_events ADD COLUMN source TEXT;",
		)},
		"README.md": {Data: []byte("ignored")},
	}
}

func TestMigrateFS(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.MigrateFS(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateFS() error = %v", err)
	}

	if _, err := db.ExecContext(ctx,
		"INSERT INTO test_events (id, kind, source) VALUES ('e1', 'alarm', 'rule')",
	); err != nil {
		t.Fatalf("insert after migration: %v", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		t.Fatalf("appliedMigrations() error = %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "20260101_000000" {
		t.Errorf("applied = %+v, want 2 in version order", applied)
	}

	// Second run is a no-op.
	if err := db.MigrateFS(ctx, testMigrations()); err != nil {
		t.Fatalf("second MigrateFS() error = %v", err)
	}
}

func TestMigrateFS_FailureStops(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	fsys["20260101_120000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}

	if err := db.MigrateFS(ctx, fsys); err == nil {
		t.Fatal("MigrateFS() expected error for broken migration")
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		t.Fatalf("appliedMigrations() error = %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %d, want 1 (migrations before the failure stay)", len(applied))
	}
}

func TestMigrationStatus(t *testing.T) {
	orig := Migrations
	t.Cleanup(func() { Migrations = orig })
	Migrations = testMigrations()

	db := openTestDB(t)
	ctx := context.Background()

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 2 {
		t.Fatalf("before: applied=%d pending=%d, want 0/2", len(applied), len(pending))
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	applied, pending, err = db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("after: applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}
}

func TestMigrateFS_ChecksumMismatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	if err := db.MigrateFS(ctx, fsys); err != nil {
		t.Fatalf("MigrateFS() error = %v", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		t.Fatalf("appliedMigrations() error = %v", err)
	}
	if applied[0].Name != "events" || len(applied[0].Checksum) != 64 {
		t.Errorf("record = %+v", applied[0])
	}

	fsys["20260101_000000_events.up.sql"] = &fstest.MapFile{Data: []byte(
		"CREATE TABLE test_events (id TEXT PRIMARY KEY);",
	)}
	fsys["20260103_000000_later.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE later (id TEXT);")}

	if err := db.MigrateFS(ctx, fsys); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("MigrateFS() error = %v, want ErrChecksumMismatch", err)
	}
	if applied, _ := db.appliedMigrations(ctx); len(applied) != 2 {
		t.Errorf("applied = %d, want 2 (nothing runs after a mismatch)", len(applied))
	}
}

func TestMigrateNilFS(t *testing.T) {
	db := openTestDB(t)

	if err := db.MigrateFS(context.Background(), nil); err != nil {
		t.Errorf("MigrateFS(nil) error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260118_120000_audit_logs.up.sql", "20260118_120000", "audit_logs", true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true},
		{"20260118_120000_audit_logs.down.sql", "", "", false},
		{"20260118.up.sql", "", "", false},
		{"2026_120000_short_date.up.sql", "", "", false},
		{"20260118_12000x_bad_clock.up.sql", "", "", false},
		{"notes.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
