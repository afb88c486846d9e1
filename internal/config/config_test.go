// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(), nil)
	require.NoError(t, err)

	assert.Equal(t, "https://api.clickup.com/api/v2", cfg.API.BaseURL)
	assert.Equal(t, "clickup-tap/0.1", cfg.API.UserAgent)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.Equal(t, 1000, cfg.API.MaxPages)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Streams)
	assert.Empty(t, cfg.Store.Path)
	assert.ErrorIs(t, RequireToken(cfg), ErrNoToken)
}

func TestLoadFromYAML(t *testing.T) {
	v := newViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
api_token: pk_file
base_url: http://localhost:9999/api/v2
timeout: 5s
max_pages: 3
streams: [team, folder_task]
sqlite_path: out/clickup.db
metrics_addr: ":9108"
log_level: debug
`)))

	cfg, err := Load(v, map[string]string{SecretAPIToken: "pk_secret"})
	require.NoError(t, err)
	assert.Equal(t, "pk_file", cfg.API.APIToken, "explicit token wins over secrets")
	assert.Equal(t, "http://localhost:9999/api/v2", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.MaxPages)
	assert.Equal(t, []string{"team", "folder_task"}, cfg.Streams)
	assert.Equal(t, "out/clickup.db", cfg.Store.Path)
	assert.Equal(t, ":9108", cfg.MetricsAddr)
	assert.NoError(t, RequireToken(cfg))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLICKUP_TAP_API_TOKEN", "pk_env")
	t.Setenv("CLICKUP_TAP_STREAMS", "space, tag")

	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, "pk_env", cfg.API.APIToken)
	assert.Equal(t, []string{"space", "tag"}, cfg.Streams)
}

func TestLoadTokenFromSecrets(t *testing.T) {
	cfg, err := Load(newViper(), map[string]string{SecretAPIToken: "pk_secret"})
	require.NoError(t, err)
	assert.Equal(t, "pk_secret", cfg.API.APIToken)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"negative timeout", KeyTimeout, "-1s"},
		{"negative max pages", KeyMaxPages, -1},
		{"bad log level", KeyLogLevel, "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.val)
			_, err := Load(v, nil)
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoadSecrets(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, SecretAPIToken, "  pk_abc123  \n")
				writeFile(t, dir, "other-key", "xyz")
				return dir
			},
			want: map[string]string{
				SecretAPIToken: "pk_abc123",
				"other-key":    "xyz",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files and dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, SecretAPIToken, "   \n\t  ")
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden", "secret")
				return dir
			},
			want: map[string]string{},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, SecretAPIToken, "pk_1")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
				return dir
			},
			want: map[string]string{SecretAPIToken: "pk_1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSecrets(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
