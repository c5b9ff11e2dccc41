// Package cli holds the account maintenance commands run next to the API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"wainbox/internal/auth"
	"wainbox/internal/config"
	"wainbox/internal/db"
	"wainbox/internal/repo"
	"wainbox/pkg/models"

	"github.com/joho/godotenv"
	"golang.org/x/term"
	"gorm.io/gorm"
)

var (
	ErrUserExists    = errors.New("user already exists")
	ErrEmptyPassword = errors.New("password is empty")
)

// Prompter reads answers from a terminal, or line by line when input is piped
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

// NewPrompter prompts on stderr and reads from stdin
func NewPrompter() *Prompter {
	fd := int(os.Stdin.Fd())
	return &Prompter{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stderr,
		fd:     fd,
		isTerm: term.IsTerminal(fd),
	}
}

// NewPipedPrompter reads answers from r without a terminal
func NewPipedPrompter(r io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(r), out: out}
}

// Line prompts for one line of input
func (p *Prompter) Line(prompt string) (string, error) {
	if p.isTerm {
		fmt.Fprint(p.out, prompt)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSpace(strings.TrimSuffix(prompt, ":")), err)
	}
	return strings.TrimSpace(line), nil
}

// Password prompts for a password with echo disabled on a terminal
func (p *Prompter) Password(prompt string) (string, error) {
	if !p.isTerm {
		password, err := p.Line(prompt)
		if err != nil {
			return "", err
		}
		if password == "" {
			return "", ErrEmptyPassword
		}
		return password, nil
	}

	fmt.Fprint(p.out, prompt)
	raw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", ErrEmptyPassword
	}
	return password, nil
}

// OpenDatabase loads the environment and opens the migrated database
func OpenDatabase() (*gorm.DB, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	database, err := db.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(database); err != nil {
		return nil, err
	}
	return database, nil
}

// CreateAdmin creates an active administrator unless the username is taken
func CreateAdmin(ctx context.Context, users *repo.UserRepository, username, name, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is empty")
	}
	if strings.TrimSpace(password) == "" {
		return nil, ErrEmptyPassword
	}
	if name = strings.TrimSpace(name); name == "" {
		name = username
	}

	if _, err := users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     username,
		Name:         name,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ResetPassword replaces the password of an existing user
func ResetPassword(ctx context.Context, users *repo.UserRepository, username, password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrEmptyPassword
	}
	return auth.NewService(users, "", 0).SetPassword(ctx, strings.TrimSpace(username), strings.TrimSpace(password))
}
