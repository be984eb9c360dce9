package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
	_ "github.com/nerrad567/slotlink-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionCreate, EntityType: EntitySlot, EntityID: "1", UserID: "usr-a", CreatedAt: base},
		{Action: ActionCommand, EntityType: EntitySlot, EntityID: "4", UserID: "usr-b",
			Details: map[string]any{"command": 1}, CreatedAt: base.Add(time.Second)},
		{Action: ActionDelete, EntityType: EntityUser, EntityID: "usr-c", UserID: "usr-a", CreatedAt: base.Add(2 * time.Second)},
		{Action: ActionLogin, EntityType: EntityUser, EntityID: "usr-a", Source: SourceSystem, CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Fatal("Create() should generate an ID")
		}
	}
	if entries[0].Source != SourceAPI {
		t.Errorf("default Source = %q, want %q", entries[0].Source, SourceAPI)
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, ActionLogin},
		{"by action", Filter{Action: ActionCommand}, 1, ActionCommand},
		{"by entity type", Filter{EntityType: EntitySlot}, 2, ActionCommand},
		{"by entity", Filter{EntityType: EntitySlot, EntityID: "1"}, 1, ActionCreate},
		{"by user", Filter{UserID: "usr-a"}, 2, ActionDelete},
		{"no match", Filter{Action: ActionRegister}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.wantTotal || len(got.Logs) != tt.wantTotal {
				t.Fatalf("List() total = %d, len = %d, want %d", got.Total, len(got.Logs), tt.wantTotal)
			}
			if tt.wantFirst != "" && got.Logs[0].Action != tt.wantFirst {
				t.Errorf("first action = %q, want %q", got.Logs[0].Action, tt.wantFirst)
			}
		})
	}

	got, err := repo.List(ctx, Filter{Action: ActionCommand})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if cmd, ok := got.Logs[0].Details["command"].(float64); !ok || cmd != 1 {
		t.Errorf("Details = %v, want command 1", got.Logs[0].Details)
	}
	if !got.Logs[0].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", got.Logs[0].CreatedAt, base.Add(time.Second))
	}
}

func TestSQLiteRepository_ListPaging(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for range 5 {
		if err := repo.Create(ctx, &Entry{Action: ActionUpdate, EntityType: EntitySlot}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantLen   int
		wantLimit int
	}{
		{"default limit", Filter{}, 5, defaultListLimit},
		{"page", Filter{Limit: 2, Offset: 1}, 2, 2},
		{"tail", Filter{Limit: 2, Offset: 4}, 1, 2},
		{"clamped", Filter{Limit: 10_000, Offset: -3}, 5, maxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got.Logs) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got.Logs), tt.wantLen)
			}
			if got.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", got.Limit, tt.wantLimit)
			}
			if got.Total != 5 {
				t.Errorf("Total = %d, want 5", got.Total)
			}
		})
	}
}
