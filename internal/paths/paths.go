// Package paths resolves the directories vibe reads and writes.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the directory holding vibe's state under a home or project
// directory.
const StateDirName = ".vibe"

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// ResolveStateDir returns the .vibe directory for dir. If dir already ends in
// .vibe it is used as is. A "redirect" file inside the .vibe directory points
// at the real location, either absolute or relative to the .vibe directory.
func ResolveStateDir(dir string) string {
	dir = filepath.Clean(dir)
	if filepath.Base(dir) != StateDirName {
		dir = filepath.Join(dir, StateDirName)
	}

	data, err := os.ReadFile(filepath.Join(dir, "redirect")) //nolint:gosec // G304: fixed file name under the state dir
	if err != nil {
		return dir
	}
	target := strings.TrimSpace(string(data))
	if target == "" {
		return dir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(dir, target)
}

// HomeStateDir returns ~/.vibe with redirects applied.
func HomeStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return ResolveStateDir(home), nil
}

// DefaultSessionDir is where the file backend keeps session records.
func DefaultSessionDir() string {
	return stateSubpath("sessions")
}

// DefaultDBPath is where the sqlite backend keeps its database.
func DefaultDBPath() string {
	return stateSubpath("sessions.db")
}

// DefaultWorkflowDir holds user workflow definitions.
func DefaultWorkflowDir() string {
	return stateSubpath("workflows")
}

// UserConfigPath is the user-level config file, ~/.config/vibe/config.yaml.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "vibe", "config.yaml")
	}
	return filepath.Join(home, ".config", "vibe", "config.yaml")
}

func stateSubpath(name string) string {
	dir, err := HomeStateDir()
	if err != nil {
		return filepath.Join(StateDirName, name)
	}
	return filepath.Join(dir, name)
}
