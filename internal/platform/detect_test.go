package platform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserModelsDirForLinux(t *testing.T) {
	t.Parallel()

	dir, err := UserModelsDirFor("linux", "/home/u", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/home/u", ".local", "share", "whisperd", "models"), dir)

	dir, err = UserModelsDirFor("linux", "/home/u", "/custom/data")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/custom/data", "whisperd", "models"), dir)
}

func TestUserModelsDirForDarwin(t *testing.T) {
	t.Parallel()

	dir, err := UserModelsDirFor("darwin", "/Users/u", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/Users/u", "Library", "Application Support", "whisperd", "models"), dir)
}

func TestUserModelsDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := UserModelsDirFor("plan9", "/home/u", "")
	require.Error(t, err)
}

func TestResolveModelsDirOverrideWins(t *testing.T) {
	t.Parallel()

	dir, err := ResolveModelsDir("/opt/models/", "")
	require.NoError(t, err)
	require.Equal(t, "/opt/models", dir)
}

func TestResolveModelsDirUsesSharedWhenWritable(t *testing.T) {
	t.Parallel()

	shared := filepath.Join(t.TempDir(), "models")
	dir, err := ResolveModelsDir("", shared)
	require.NoError(t, err)
	require.Equal(t, shared, dir)
}
