package database

import (
	"context"
	"embed"
	"testing"
)

const testMigrationsDir = "testdata"

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// useTestMigrations points the package at testdata for the duration of t.
func useTestMigrations(t *testing.T, fsys embed.FS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = fsys, dir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query error = %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t, testMigrationsFS, testMigrationsDir)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_slots") {
		t.Fatal("test_slots not created")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 1/0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_PartialIndexAllowsReuseAfterSoftDelete(t *testing.T) {
	useTestMigrations(t, testMigrationsFS, testMigrationsDir)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO test_slots (slot_number, name) VALUES (3, 'a')"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	_, err := db.ExecContext(ctx, "INSERT INTO test_slots (slot_number, name) VALUES (3, 'b')")
	if !IsUniqueViolation(err) {
		t.Fatalf("duplicate active slot error = %v, want unique violation", err)
	}

	if _, err := db.ExecContext(ctx, "UPDATE test_slots SET is_active = 0 WHERE slot_number = 3"); err != nil {
		t.Fatalf("soft delete error = %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_slots (slot_number, name) VALUES (3, 'c')"); err != nil {
		t.Errorf("reuse after soft delete error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useTestMigrations(t, testMigrationsFS, testMigrationsDir)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_slots") {
		t.Error("test_slots should have been dropped")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 0/1", len(applied), len(pending))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	var emptyFS embed.FS
	useTestMigrations(t, emptyFS, ".")
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"up migration", "20260301_090000_create_slots.up.sql", "20260301_090000", true, true},
		{"down migration", "20260301_090000_create_slots.down.sql", "20260301_090000", false, true},
		{"not sql", "readme.txt", "", false, false},
		{"missing direction", "20260301_090000_create_slots.sql", "", false, false},
		{"missing description", "20260301_090000.up.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if isUp != tt.wantIsUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_090000_create_slots.up.sql", "create_slots"},
		{"20260301_090100_create_slot_data.down.sql", "create_slot_data"},
		{"20260301_090200_add_alerts_read_index.up.sql", "add_alerts_read_index"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
