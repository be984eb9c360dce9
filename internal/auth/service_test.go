package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "service-test-secret"

func newTestService(t *testing.T) (*Service, *SQLiteUserRepository) {
	t.Helper()
	db := testDB(t)
	users := NewUserRepository(db)
	svc := NewService(users, NewResetCodeRepository(db), ServiceConfig{
		JWTSecret:      testSecret,
		AccessTokenTTL: 60,
		ResetCodeTTL:   15 * time.Minute,
	})
	return svc, users
}

func TestService_Register(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		Email:    " New@Example.com",
		Password: "secret1",
		Name:     "  New User ",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "new@example.com" || user.Name != "New User" || user.Role != RoleUser {
		t.Errorf("Register() = %+v, want normalised email, trimmed name, role user", user)
	}

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{"bad email", RegisterInput{Email: "nope", Password: "secret1"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "a@example.com", Password: "12345"}, ErrWeakPassword},
		{"bad role", RegisterInput{Email: "a@example.com", Password: "secret1", Role: "owner"}, ErrInvalidRole},
		{"duplicate", RegisterInput{Email: "NEW@example.com", Password: "secret1"}, ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_PasswordPolicy(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	svc := NewService(users, NewResetCodeRepository(db), ServiceConfig{
		JWTSecret: testSecret,
		Password:  PasswordPolicy{MinLength: 8, Iterations: 1, MemoryKiB: 8 * 1024, Threads: 1},
	})
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("Register(7 runes) error = %v, want ErrWeakPassword", err)
	}
	user, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret12"})
	if err != nil {
		t.Fatalf("Register(8 runes) error = %v", err)
	}

	stored, err := users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !strings.Contains(stored.PasswordHash, "$m=8192,t=1,p=1$") {
		t.Errorf("hash %q was not made with the configured cost", stored.PasswordHash)
	}

	// The built-in reset password is shorter than this policy allows.
	if _, err := svc.AdminResetPassword(ctx, user.ID, ""); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("AdminResetPassword(default) error = %v, want ErrWeakPassword", err)
	}
}

func TestService_Login(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "op@example.com", Password: "secret1", Role: RoleOperator}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	token, user, err := svc.Login(ctx, "OP@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, err := svc.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if claims.Subject != user.ID || claims.Role != RoleOperator || claims.Email != "op@example.com" {
		t.Errorf("claims = %+v, want subject %s role operator", claims, user.ID)
	}

	for _, tc := range []struct{ email, password string }{
		{"op@example.com", "wrong-password"},
		{"ghost@example.com", "secret1"},
	} {
		if _, _, err := svc.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%s) error = %v, want ErrInvalidCredentials", tc.email, err)
		}
	}

	// Deactivated accounts cannot log in.
	if _, err := users.db.ExecContext(ctx, "UPDATE users SET is_active = 0 WHERE id = ?", user.ID); err != nil {
		t.Fatalf("deactivating: %v", err)
	}
	if _, _, err := svc.Login(ctx, "op@example.com", "secret1"); !errors.Is(err, ErrUserInactive) {
		t.Errorf("Login(inactive) error = %v, want ErrUserInactive", err)
	}
}

func TestService_PasswordResetFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "forgot@example.com", Password: "oldpass"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, _, err := svc.IssueResetCode(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("IssueResetCode(unknown) error = %v, want ErrUserNotFound", err)
	}

	first, _, err := svc.IssueResetCode(ctx, "forgot@example.com")
	if err != nil {
		t.Fatalf("IssueResetCode() error = %v", err)
	}
	code, expires, err := svc.IssueResetCode(ctx, "forgot@example.com")
	if err != nil {
		t.Fatalf("IssueResetCode() error = %v", err)
	}
	if d := time.Until(expires); d < 14*time.Minute || d > 16*time.Minute {
		t.Errorf("code expires in %v, want ~15m", d)
	}

	if err := svc.ResetPassword(ctx, "forgot@example.com", code, "123"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("ResetPassword(short) error = %v, want ErrWeakPassword", err)
	}
	if first != code {
		if err := svc.ResetPassword(ctx, "forgot@example.com", first, "newpass"); !errors.Is(err, ErrResetCodeInvalid) {
			t.Errorf("ResetPassword(superseded code) error = %v, want ErrResetCodeInvalid", err)
		}
	}
	if err := svc.ResetPassword(ctx, "ghost@example.com", code, "newpass"); !errors.Is(err, ErrResetCodeInvalid) {
		t.Errorf("ResetPassword(unknown email) error = %v, want ErrResetCodeInvalid", err)
	}

	if err := svc.ResetPassword(ctx, "forgot@example.com", " "+code+" ", "newpass"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, _, err := svc.Login(ctx, "forgot@example.com", "newpass"); err != nil {
		t.Errorf("Login(new password) error = %v", err)
	}
	if err := svc.ResetPassword(ctx, "forgot@example.com", code, "another"); !errors.Is(err, ErrResetCodeInvalid) {
		t.Errorf("ResetPassword(reused code) error = %v, want ErrResetCodeInvalid", err)
	}
}

func TestService_ResetCodeExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "late@example.com", Password: "oldpass"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	code, _, err := svc.IssueResetCode(ctx, "late@example.com")
	if err != nil {
		t.Fatalf("IssueResetCode() error = %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	if err := svc.ResetPassword(ctx, "late@example.com", code, "newpass"); !errors.Is(err, ErrResetCodeInvalid) {
		t.Errorf("ResetPassword(expired) error = %v, want ErrResetCodeInvalid", err)
	}
	n, err := svc.PurgeExpiredCodes(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredCodes() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpiredCodes() = %d, want 1", n)
	}
}

func TestService_AdminOperations(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, RegisterInput{Email: "admin@example.com", Password: "adminpw", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Register(admin) error = %v", err)
	}
	user, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "userpw1"})
	if err != nil {
		t.Fatalf("Register(user) error = %v", err)
	}

	t.Run("reset password defaults", func(t *testing.T) {
		applied, err := svc.AdminResetPassword(ctx, user.ID, "")
		if err != nil {
			t.Fatalf("AdminResetPassword() error = %v", err)
		}
		if applied != DefaultResetPassword {
			t.Errorf("applied = %q, want %q", applied, DefaultResetPassword)
		}
		if _, _, err := svc.Login(ctx, "user@example.com", DefaultResetPassword); err != nil {
			t.Errorf("Login(default password) error = %v", err)
		}
		if _, err := svc.AdminResetPassword(ctx, user.ID, "abc"); !errors.Is(err, ErrWeakPassword) {
			t.Errorf("AdminResetPassword(short) error = %v, want ErrWeakPassword", err)
		}
		if _, err := svc.AdminResetPassword(ctx, "usr-missing", "abcdef"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("AdminResetPassword(missing) error = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("update role", func(t *testing.T) {
		if err := svc.UpdateRole(ctx, admin.ID, user.ID, RoleOperator); err != nil {
			t.Fatalf("UpdateRole() error = %v", err)
		}
		got, err := users.GetByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Role != RoleOperator {
			t.Errorf("Role = %q, want operator", got.Role)
		}
		if err := svc.UpdateRole(ctx, admin.ID, admin.ID, RoleUser); !errors.Is(err, ErrSelfModification) {
			t.Errorf("UpdateRole(self) error = %v, want ErrSelfModification", err)
		}
		if err := svc.UpdateRole(ctx, admin.ID, user.ID, "root"); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("UpdateRole(root) error = %v, want ErrInvalidRole", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := svc.DeleteUser(ctx, admin.ID, admin.ID); !errors.Is(err, ErrSelfModification) {
			t.Errorf("DeleteUser(self) error = %v, want ErrSelfModification", err)
		}
		if err := svc.DeleteUser(ctx, admin.ID, user.ID); err != nil {
			t.Fatalf("DeleteUser() error = %v", err)
		}
		if err := svc.DeleteUser(ctx, admin.ID, user.ID); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("DeleteUser(again) error = %v, want ErrUserNotFound", err)
		}
	})
}
