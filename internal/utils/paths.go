package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" with the user's home directory and
// returns the absolute form of dir.
func ExpandHome(dir string) (string, error) {
	dir, err := ExpandTilde(dir)
	if err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}

// ExpandTilde replaces a leading "~" with the user's home directory. Other
// relative paths are returned unchanged.
func ExpandTilde(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}

// ResolvePaths resolves a list of paths relative to a base directory.
// Absolute paths are returned unchanged.
func ResolvePaths(paths []string, baseDir string) []string {
	if len(paths) == 0 {
		return nil
	}

	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		if filepath.IsAbs(path) {
			resolved = append(resolved, path)
		} else {
			resolved = append(resolved, filepath.Join(baseDir, path))
		}
	}
	return resolved
}
