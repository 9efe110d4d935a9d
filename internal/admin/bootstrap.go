// Package admin implements the one-time admin-user bootstrap run at
// process startup, modeled on the teacher's env-driven configuration
// validation idiom (internal/db.Config.Validate).
package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carlosapgomes/caseflow/internal/db"
)

// Config holds the BOOTSTRAP_ADMIN_* environment settings.
type Config struct {
	Email        string
	Password     string
	PasswordFile string
}

// LoadConfigFromEnv reads BOOTSTRAP_ADMIN_EMAIL/PASSWORD/PASSWORD_FILE,
// failing fast if both or neither of PASSWORD/PASSWORD_FILE are set.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Email:        os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		Password:     os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		PasswordFile: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD_FILE"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces that exactly one of Password/PasswordFile is set
// whenever Email is set; setting both or neither is a fatal configuration
// error per spec.md §4.8.
func (c Config) Validate() error {
	if c.Email == "" {
		return nil
	}
	hasPassword := c.Password != ""
	hasPasswordFile := c.PasswordFile != ""
	if hasPassword == hasPasswordFile {
		return fmt.Errorf("exactly one of BOOTSTRAP_ADMIN_PASSWORD or BOOTSTRAP_ADMIN_PASSWORD_FILE must be set, not %s", bothOrNeither(hasPassword, hasPasswordFile))
	}
	return nil
}

func bothOrNeither(a, b bool) string {
	if a && b {
		return "both"
	}
	return "neither"
}

func (c Config) resolvePassword() (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	raw, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("read BOOTSTRAP_ADMIN_PASSWORD_FILE: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Bootstrap seeds the first admin user when BOOTSTRAP_ADMIN_EMAIL is set
// and the users table is empty. Never creates a bootstrap admin when any
// user already exists, even if the table only holds non-admin rows.
func Bootstrap(ctx context.Context, cfg Config, users *db.UserRepository) error {
	if cfg.Email == "" {
		return nil
	}

	count, err := users.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	password, err := cfg.resolvePassword()
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("bootstrap admin password resolved to empty string")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	if _, err := users.CreateUser(ctx, db.UserCreateInput{
		ID:           uuid.New(),
		Email:        cfg.Email,
		PasswordHash: string(hash),
		Role:         "admin",
	}); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	return nil
}
