package telemetry

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
	"github.com/nerrad567/slotlink-core/internal/slot"
	_ "github.com/nerrad567/slotlink-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "telemetry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

// testStack wires a registry, repositories, evaluator and ingestor on one DB.
type testStack struct {
	db       *sql.DB
	registry *slot.Registry
	readings *SQLiteReadingRepository
	alerts   *SQLiteAlertRepository
	ingestor *Ingestor
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := setupTestDB(t)

	registry := slot.NewRegistry(slot.NewSQLiteRepository(db), slot.Options{MaxSlots: 20})
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	readings := NewSQLiteReadingRepository(db)
	alerts := NewSQLiteAlertRepository(db)

	return &testStack{
		db:       db,
		registry: registry,
		readings: readings,
		alerts:   alerts,
		ingestor: NewIngestor(registry, readings, NewEvaluator(alerts)),
	}
}

func (s *testStack) createSlot(t *testing.T, sl slot.Slot) {
	t.Helper()
	if _, err := s.registry.Create(context.Background(), &sl); err != nil {
		t.Fatalf("Create(slot %d) error = %v", sl.SlotNumber, err)
	}
}

func floatPtr(f float64) *float64 { return &f }
