package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStateDir_TableDriven(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"absolute project path", "/home/user/project", "/home/user/project/.vibe"},
		{"absolute with .vibe", "/home/user/project/.vibe", "/home/user/project/.vibe"},
		{"absolute with trailing slash", "/home/user/project/.vibe/", "/home/user/project/.vibe"},
		{"relative .vibe", ".vibe", ".vibe"},
		{"empty string", "", ".vibe"},
		{"relative project", "./my-project", "my-project/.vibe"},
		{"current dir", ".", ".vibe"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := filepath.FromSlash(tc.input)
			expected := filepath.FromSlash(tc.expected)
			require.Equal(t, expected, ResolveStateDir(input))
		})
	}
}

func TestResolveStateDir_FollowsRedirect(t *testing.T) {
	tmpDir := t.TempDir()
	stateDir := filepath.Join(tmpDir, "project", ".vibe")
	targetDir := filepath.Join(tmpDir, "shared-state")
	require.NoError(t, os.MkdirAll(stateDir, 0755))
	require.NoError(t, os.MkdirAll(targetDir, 0755))

	relPath, err := filepath.Rel(stateDir, targetDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "redirect"), []byte(relPath+"\n"), 0644))

	require.Equal(t, targetDir, ResolveStateDir(filepath.Join(tmpDir, "project")))
}

func TestResolveStateDir_FollowsAbsoluteRedirect(t *testing.T) {
	tmpDir := t.TempDir()
	stateDir := filepath.Join(tmpDir, "project", ".vibe")
	targetDir := filepath.Join(tmpDir, "elsewhere")
	require.NoError(t, os.MkdirAll(stateDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "redirect"), []byte(targetDir), 0644))

	require.Equal(t, targetDir, ResolveStateDir(stateDir))
}

func TestResolveStateDir_EmptyRedirect(t *testing.T) {
	tmpDir := t.TempDir()
	stateDir := filepath.Join(tmpDir, ".vibe")
	require.NoError(t, os.MkdirAll(stateDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "redirect"), []byte("  "), 0644))

	require.Equal(t, stateDir, ResolveStateDir(tmpDir))
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := ExpandHome("~/sessions")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "sessions"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	require.Equal(t, home, got)

	got, err = ExpandHome("/var/lib/vibe")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/vibe", got)

	got, err = ExpandHome("~other/x")
	require.NoError(t, err)
	require.Equal(t, "~other/x", got)
}

func TestDefaultDirs_UnderHomeState(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	state := filepath.Join(home, ".vibe")
	require.Equal(t, filepath.Join(state, "sessions"), DefaultSessionDir())
	require.Equal(t, filepath.Join(state, "sessions.db"), DefaultDBPath())
	require.Equal(t, filepath.Join(state, "workflows"), DefaultWorkflowDir())
	require.Equal(t, filepath.Join(home, ".config", "vibe", "config.yaml"), UserConfigPath())
}
