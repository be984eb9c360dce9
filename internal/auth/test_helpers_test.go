package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
	_ "github.com/nerrad567/slotlink-core/migrations"
)

// testDB opens a migrated SQLite database in a temp directory.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
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

// seedTestUser inserts an active account whose password is "password123".
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{
		Email:        email,
		Name:         "Test " + string(role),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}
