// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config turns viper settings, environment variables, and the
// secrets directory into a TapConfig.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/clickup-tap/pkg/types"
)

// EnvPrefix prefixes every environment variable, e.g. CLICKUP_TAP_API_TOKEN.
const EnvPrefix = "CLICKUP_TAP"

// Keys read from viper.
const (
	KeyAPIToken    = "api_token"
	KeyBaseURL     = "base_url"
	KeyUserAgent   = "user_agent"
	KeyTimeout     = "timeout"
	KeyMaxRetries  = "max_retries"
	KeyMaxPages    = "max_pages"
	KeyStreams     = "streams"
	KeySQLitePath  = "sqlite_path"
	KeyMetricsAddr = "metrics_addr"
	KeyLogLevel    = "log_level"
)

// ErrNoToken reports a configuration without an API token.
var ErrNoToken = errors.New("no ClickUp API token: set api_token, CLICKUP_TAP_API_TOKEN, or .secrets/" + SecretAPIToken)

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, "https://api.clickup.com/api/v2")
	v.SetDefault(KeyUserAgent, "clickup-tap/0.1")
	v.SetDefault(KeyTimeout, 60*time.Second)
	v.SetDefault(KeyMaxRetries, 5)
	v.SetDefault(KeyMaxPages, 1000)
	v.SetDefault(KeyLogLevel, "info")
}

// Load builds a TapConfig from v. A token in secrets is used only when v
// has none.
func Load(v *viper.Viper, secrets map[string]string) (types.TapConfig, error) {
	cfg := types.TapConfig{
		API: types.APIConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:    v.GetDuration(KeyTimeout),
				UserAgent:  v.GetString(KeyUserAgent),
				MaxRetries: v.GetInt(KeyMaxRetries),
			},
			BaseURL:  v.GetString(KeyBaseURL),
			APIToken: v.GetString(KeyAPIToken),
			MaxPages: v.GetInt(KeyMaxPages),
		},
		Store:       types.StoreConfig{Path: v.GetString(KeySQLitePath)},
		Streams:     splitList(v.GetStringSlice(KeyStreams)),
		MetricsAddr: v.GetString(KeyMetricsAddr),
		LogLevel:    v.GetString(KeyLogLevel),
	}
	if cfg.API.APIToken == "" {
		cfg.API.APIToken = secrets[SecretAPIToken]
	}

	if cfg.API.Timeout < 0 {
		return cfg, fmt.Errorf("timeout must not be negative, got %s", cfg.API.Timeout)
	}
	if cfg.API.MaxPages < 0 {
		return cfg, fmt.Errorf("max_pages must not be negative, got %d", cfg.API.MaxPages)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RequireToken fails with ErrNoToken when cfg has no API token.
func RequireToken(cfg types.TapConfig) error {
	if cfg.API.APIToken == "" {
		return ErrNoToken
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q: use debug, info, warn, or error", s)
}

// splitList accepts both repeated values and comma-separated strings, as
// environment variables only carry the latter.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
