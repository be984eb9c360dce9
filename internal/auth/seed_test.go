package auth

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSeedAdmin_GeneratesPasswordOnEmptyDB(t *testing.T) {
	db := testDB(t)
	userRepo := NewUserRepository(db)
	ctx := context.Background()

	password, err := SeedAdmin(ctx, userRepo, "", "", PasswordPolicy{}, slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if len(password) != seedPasswordBytes*2 {
		t.Fatalf("SeedAdmin() password length = %d, want %d", len(password), seedPasswordBytes*2)
	}

	admin, err := userRepo.GetByEmail(ctx, DefaultAdminEmail)
	if err != nil {
		t.Fatalf("GetByEmail(%s) error = %v", DefaultAdminEmail, err)
	}
	if admin.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", admin.Role, RoleAdmin)
	}
	if !admin.IsActive {
		t.Error("seed admin should be active")
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against stored hash")
	}
}

func TestSeedAdmin_UsesConfiguredCredentials(t *testing.T) {
	db := testDB(t)
	userRepo := NewUserRepository(db)
	ctx := context.Background()

	policy := PasswordPolicy{Iterations: 1, MemoryKiB: 8 * 1024, Threads: 1}
	password, err := SeedAdmin(ctx, userRepo, "root@site.local", "admin123", policy, slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "admin123" {
		t.Errorf("SeedAdmin() password = %q, want configured value", password)
	}

	admin, err := userRepo.GetByEmail(ctx, "root@site.local")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if ok, _ := VerifyPassword("admin123", admin.PasswordHash); !ok { //nolint:errcheck // hash is valid
		t.Error("configured password should verify")
	}
	if !strings.Contains(admin.PasswordHash, "$m=8192,t=1,p=1$") {
		t.Errorf("hash %q was not made with the given policy", admin.PasswordHash)
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	userRepo := NewUserRepository(db)
	ctx := context.Background()

	seedTestUser(t, db, "existing@example.com", RoleUser)

	password, err := SeedAdmin(ctx, userRepo, "", "", PasswordPolicy{}, slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should return empty password when users exist")
	}

	count, err := userRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}
