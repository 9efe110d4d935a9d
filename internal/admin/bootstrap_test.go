package admin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "no email set, nothing to validate", cfg: Config{}},
		{name: "email with password only", cfg: Config{Email: "a@b.com", Password: "secret"}},
		{name: "email with password file only", cfg: Config{Email: "a@b.com", PasswordFile: "/tmp/pw"}},
		{name: "email with neither password source", cfg: Config{Email: "a@b.com"}, wantErr: true},
		{name: "email with both password sources", cfg: Config{Email: "a@b.com", Password: "x", PasswordFile: "/tmp/pw"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_resolvePassword(t *testing.T) {
	t.Run("literal password wins when set", func(t *testing.T) {
		cfg := Config{Password: "literal-secret"}
		got, err := cfg.resolvePassword()
		require.NoError(t, err)
		assert.Equal(t, "literal-secret", got)
	})

	t.Run("reads and trims password file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "password")
		require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))

		cfg := Config{PasswordFile: path}
		got, err := cfg.resolvePassword()
		require.NoError(t, err)
		assert.Equal(t, "file-secret", got)
	})

	t.Run("missing password file errors", func(t *testing.T) {
		cfg := Config{PasswordFile: "/nonexistent/path"}
		_, err := cfg.resolvePassword()
		assert.Error(t, err)
	})
}
