package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"whisperd/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	require.True(t, names["models"])
	require.True(t, names["version"])
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Parallel()

	app := &appState{}
	cmd := &cobra.Command{Use: "test"}
	bindGlobalFlags(cmd, app)
	bindServerFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--model", "small",
		"--models-dir", "/srv/models",
		"--bin", "my-whisper",
		"--addr", ":9000",
		"--silence-gate",
	}))

	cfg := config.Default()
	applyFlagOverrides(cmd, &cfg)
	require.Equal(t, "small", cfg.Model)
	require.Equal(t, "/srv/models", cfg.ModelsDir)
	require.Equal(t, "my-whisper", cfg.Bin)
	require.Equal(t, ":9000", cfg.Addr)
	require.True(t, cfg.SilenceGate)
}

func TestApplyFlagOverridesLeavesUnsetFlagsAlone(t *testing.T) {
	t.Parallel()

	app := &appState{}
	cmd := &cobra.Command{Use: "test"}
	bindGlobalFlags(cmd, app)
	bindServerFlags(cmd)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := config.Default()
	cfg.Model = "from-env"
	applyFlagOverrides(cmd, &cfg)
	require.Equal(t, "from-env", cfg.Model)
	require.Equal(t, config.DefaultAddr, cfg.Addr)
}

func TestModelsListShowsStatus(t *testing.T) {
	t.Parallel()

	modelsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "ggml-tiny.bin"), []byte("x"), 0o644))

	cfg := config.Default()
	cfg.ModelsDir = modelsDir
	app := &appState{cfg: cfg}

	cmd := newModelsListCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, nil))

	require.Contains(t, out.String(), "ggml-tiny.bin")
	require.Contains(t, out.String(), "present")
	require.Contains(t, out.String(), "missing")
}

func TestModelsPullRejectsCustomPath(t *testing.T) {
	t.Parallel()

	custom := filepath.Join(t.TempDir(), "custom.bin")
	require.NoError(t, os.WriteFile(custom, []byte("x"), 0o644))

	cfg := config.Default()
	cfg.ModelsDir = t.TempDir()
	app := &appState{cfg: cfg}

	cmd := newModelsPullCmd(app)
	err := cmd.RunE(cmd, []string{custom})
	require.Error(t, err)
	require.Contains(t, err.Error(), "pull expects a model alias")
}

func TestModelsPullAlreadyPresent(t *testing.T) {
	t.Parallel()

	modelsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "ggml-tiny.en.bin"), []byte("x"), 0o644))

	cfg := config.Default()
	cfg.ModelsDir = modelsDir
	app := &appState{cfg: cfg}

	cmd := newModelsPullCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, []string{"tiny.en"}))
	require.Contains(t, out.String(), "already present")
}
