package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestAuthenticateMatchesTrimmedCredentials(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Create(context.Background(), "operador", "segredo"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	user, err := service.Authenticate(context.Background(), "  operador ", " segredo ")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.Name != "operador" {
		t.Fatalf("unexpected user %q", user.Name)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Create(context.Background(), "operador", "segredo"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "operador", "outro"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRejectsEmptyFields(t *testing.T) {
	service := newTestService(t)
	for _, pair := range [][2]string{{"", "x"}, {"x", "   "}} {
		if _, err := service.Authenticate(context.Background(), pair[0], pair[1]); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials for %q, got %v", pair, err)
		}
	}
}

func TestAuthenticateRejectsInactiveUser(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Create(context.Background(), "operador", "segredo"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.SetActive(context.Background(), "operador", false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "operador", "segredo"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected inactive user to be rejected, got %v", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Create(context.Background(), "operador", "segredo"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Create(context.Background(), "operador", "outro"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}
