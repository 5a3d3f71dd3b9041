// Package platform resolves where model files live on the host.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ResolveModelsDir picks the models directory. An explicit override wins;
// otherwise the configured default is used when it already exists or can
// be created, falling back to a per-user data directory on hosts where
// the shared location is not writable.
func ResolveModelsDir(override, shared string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	if shared != "" {
		if err := os.MkdirAll(shared, 0o755); err == nil {
			return filepath.Clean(shared), nil
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return UserModelsDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

func UserModelsDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "whisperd", "models"), nil
		}
		return filepath.Join(homeDir, ".local", "share", "whisperd", "models"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "whisperd", "models"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
