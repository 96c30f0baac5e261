package agenix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chuangzhu/agenix/pkg/generation"
	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, conf map[string]any) *Config {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(conf, "."), nil))
	c, err := NewConfig(k)
	require.NoError(t, err)
	return c
}

func TestConfigDefaults(t *testing.T) {
	c := loadConfig(t, map[string]any{})
	assert.Equal(t, DefaultIdentities, c.Identities)
	assert.Equal(t, DefaultKeysGroup, c.KeysGroup)
	assert.Equal(t, PublishMount, c.Publish)
	assert.Equal(t, DefaultStateFile, c.StateFile)
	assert.Equal(t, generation.DefaultMountpoint, c.Generation.Mountpoint)
	assert.Equal(t, generation.DefaultSecretsDir, c.Generation.SecretsDir)
	assert.True(t, c.Generation.Mount)
	assert.Equal(t, 0, c.Secrets.Size())
	require.NoError(t, c.Validate())
	assert.Contains(t, c.String(), "Publish: mount")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no identities", func(c *Config) { c.Identities = nil }},
		{"empty identity", func(c *Config) { c.Identities = []string{""} }},
		{"publish mode", func(c *Config) { c.Publish = "sometimes" }},
		{"mountpoint", func(c *Config) { c.Generation.Mountpoint = "/run/agenix.d/" }},
		{"decryptor", func(c *Config) { c.Decrypt.Kind = "rot13" }},
		{"hooks", func(c *Config) {
			c.Hooks.UsersUnit = "systemd-sysusers.service"
			c.Hooks.UsersCommand = []string{"true"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadConfig(t, map[string]any{})
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), secrets.ErrConfiguration)
		})
	}
}

func TestConfigSecrets(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "secrets.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
[secrets.db]
file = "/secrets/db.age"
owner = "postgres"

[secrets.wifi]
file = "/secrets/wifi.age"
`), 0o600))

	c := loadConfig(t, map[string]any{
		"secrets_dir": "/run/secrets",
		"manifest":    manifest,
		"secrets": map[string]any{
			"db": map[string]any{
				"file":  "/secrets/db-override.age",
				"owner": "postgres",
				"group": "postgres",
				"mode":  "0440",
			},
			"token": map[string]any{
				"file":    "/secrets/token.age",
				"path":    "/etc/token",
				"symlink": false,
			},
		},
	})
	require.NoError(t, c.Validate())
	require.Equal(t, 3, c.Secrets.Size())

	db, ok := c.Secrets.Get("db")
	require.True(t, ok)
	assert.Equal(t, "/secrets/db-override.age", db.File)
	assert.Equal(t, "0440", db.Mode)
	assert.Equal(t, "/run/secrets/db", db.Path)

	wifi, ok := c.Secrets.Get("wifi")
	require.True(t, ok)
	assert.True(t, wifi.IsRootOwned())
	assert.True(t, wifi.Symlink)

	token, ok := c.Secrets.Get("token")
	require.True(t, ok)
	assert.False(t, token.Symlink)
	assert.Equal(t, "/etc/token", token.Path)
}

func TestConfigBadSecret(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]any{
		"secrets": map[string]any{
			"broken": map[string]any{"file": "/secrets/x.age", "mode": "rw-r--r--"},
		},
	}, "."), nil))
	_, err := NewConfig(k)
	assert.ErrorIs(t, err, secrets.ErrConfiguration)
}
