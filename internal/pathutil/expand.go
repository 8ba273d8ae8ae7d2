// Package pathutil resolves user-supplied file paths.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Expand replaces a leading ~ with the user's home directory and ${VAR}
// references with environment values. Other paths are returned cleaned.
func Expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains null byte")
	}
	if strings.Contains(path, "${") {
		path = os.Expand(path, os.Getenv)
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Clean(path), nil
}
