package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomePath replaces a leading "~" with the current user's home
// directory. Paths without the prefix are returned unchanged.
func ExpandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
