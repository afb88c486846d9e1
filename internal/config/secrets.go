// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SecretAPIToken is the secrets file holding the ClickUp API token.
const SecretAPIToken = "clickup-api-token"

// DefaultSecretsDir is where LoadSecrets looks by default.
const DefaultSecretsDir = ".secrets"

// LoadSecrets reads every file in dir and returns a map of filename to
// trimmed contents. A missing directory is not an error; LoadSecrets returns
// an empty map. Dotfiles, subdirectories, and empty files are skipped, and
// unreadable files are logged and skipped.
func LoadSecrets(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "err", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}
