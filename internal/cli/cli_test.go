package cli

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"wainbox/internal/auth"
	"wainbox/internal/repo"
	"wainbox/internal/testutil"
	"wainbox/pkg/models"
)

func TestPipedPrompter(t *testing.T) {
	p := NewPipedPrompter(strings.NewReader("  root \nRoot User\nsecret\n\n"), io.Discard)

	username, err := p.Line("Admin username: ")
	if err != nil || username != "root" {
		t.Fatalf("Line() = %q, %v", username, err)
	}
	name, err := p.Line("Admin name (optional): ")
	if err != nil || name != "Root User" {
		t.Fatalf("Line() = %q, %v", name, err)
	}
	password, err := p.Password("Admin password: ")
	if err != nil || password != "secret" {
		t.Fatalf("Password() = %q, %v", password, err)
	}
	if _, err := p.Password("Admin password: "); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("blank Password() error = %v, want %v", err, ErrEmptyPassword)
	}
	if _, err := p.Line("More: "); err == nil {
		t.Error("Line() at EOF succeeded")
	}
}

func TestPipedPrompterLastLineWithoutNewline(t *testing.T) {
	p := NewPipedPrompter(strings.NewReader("secret"), io.Discard)
	if password, err := p.Password("Password: "); err != nil || password != "secret" {
		t.Errorf("Password() = %q, %v", password, err)
	}
}

func TestCreateAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	users := repo.NewUserRepository(db)
	ctx := context.Background()

	user, err := CreateAdmin(ctx, users, " root ", "", "pw")
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	if user.Username != "root" || user.Name != "root" || user.Role != models.RoleAdmin || !user.IsActive {
		t.Errorf("user = %+v", user)
	}

	if _, err := CreateAdmin(ctx, users, "root", "Again", "pw"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate CreateAdmin() error = %v, want %v", err, ErrUserExists)
	}
	if _, err := CreateAdmin(ctx, users, "other", "", " "); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("CreateAdmin() with blank password error = %v", err)
	}

	service := auth.NewService(users, "secret", 0)
	if _, err := service.Login(ctx, auth.LoginRequest{Username: "root", Password: "pw"}); err != nil {
		t.Errorf("Login() as created admin error = %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	db := testutil.NewDB(t)
	users := repo.NewUserRepository(db)
	ctx := context.Background()
	if _, err := CreateAdmin(ctx, users, "root", "", "old"); err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}

	if err := ResetPassword(ctx, users, "root", "new"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	service := auth.NewService(users, "secret", 0)
	if _, err := service.Login(ctx, auth.LoginRequest{Username: "root", Password: "new"}); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
	if _, err := service.Login(ctx, auth.LoginRequest{Username: "root", Password: "old"}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("Login() with old password error = %v", err)
	}

	if err := ResetPassword(ctx, users, "ghost", "pw"); err == nil {
		t.Error("ResetPassword() for unknown user succeeded")
	}
	if err := ResetPassword(ctx, users, "root", ""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("ResetPassword() with empty password error = %v", err)
	}
}
