package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fixedIDProvider struct {
	id string
}

func (p fixedIDProvider) NewID() (string, error) {
	return p.id, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate account schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: fixedIDProvider{id: "account-1"},
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
		HashCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestRegisterThenAuthenticate(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), RegisterInput{
		Name:     "Example Admin",
		Email:    "Admin@Example.com",
		Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if account.Email != "admin@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.PasswordHash == "hunter22" {
		t.Fatalf("password must not be stored in clear text")
	}
	if account.Profile().Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", account.Profile().Role)
	}

	authenticated, err := service.Authenticate(context.Background(), " admin@example.com ", "hunter22")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if authenticated.ID != "account-1" {
		t.Fatalf("unexpected account id %q", authenticated.ID)
	}

	loaded, err := service.Get(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.Name != "Example Admin" {
		t.Fatalf("unexpected name %q", loaded.Name)
	}
}

func TestAuthenticateRejectsWrongPasswordAndUnknownEmail(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := service.Authenticate(context.Background(), "a@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	service := newTestService(t)

	_, err := service.Register(context.Background(), RegisterInput{Name: "", Email: "not-an-email", Password: "123"})
	var registrationErr *RegistrationError
	if !errors.As(err, &registrationErr) {
		t.Fatalf("expected registration error, got %v", err)
	}
	for _, field := range []string{"name", "email", "password"} {
		if registrationErr.Fields[field] == "" {
			t.Fatalf("expected %s to be reported, got %v", field, registrationErr.Fields)
		}
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, err := service.Register(context.Background(), RegisterInput{Name: "B", Email: "A@example.com", Password: "secret2"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken error, got %v", err)
	}
}

func TestGetReportsMissingAccount(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Get(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}
