package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir returns the directory holding the run store and the user
// config file.
// On Unix: ~/.addm
// On Windows: %USERPROFILE%\.addm
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".addm"), nil
}
