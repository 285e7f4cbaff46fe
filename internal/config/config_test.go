package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byztime/byztime/internal/config"
)

func TestLoadFileMissingPathReturnsBase(t *testing.T) {
	t.Parallel()

	base := config.Default()

	got, err := config.LoadFile(base, filepath.Join(t.TempDir(), "nope.jsonc"))
	require.NoError(t, err)
	require.Equal(t, base, got)
}

func TestLoadFileOverridesOnlySetFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "byztimed.jsonc")

	contents := `{
		// drift rate, parts per billion
		"drift_ppb": 500000,
	}`

	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	base := config.Default()

	got, err := config.LoadFile(base, path)
	require.NoError(t, err)
	require.Equal(t, int64(500_000), got.DriftPPB)
	require.Equal(t, base.Path, got.Path)
	require.Equal(t, base.PollInterval, got.PollInterval)
}

func TestLoadFileRejectsInvalidJSONC(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "byztimed.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := config.LoadFile(config.Default(), path)
	require.Error(t, err)
}

func TestApplyEnvOverridesFromEnvironment(t *testing.T) {
	t.Setenv("BYZTIMED_PATH", "/tmp/custom.dat")
	t.Setenv("BYZTIMED_DRIFT_PPB", "750000")

	got := config.ApplyEnv(config.Default())

	require.Equal(t, "/tmp/custom.dat", got.Path)
	require.Equal(t, int64(750_000), got.DriftPPB)
}

func TestApplyEnvIgnoresUnsetVars(t *testing.T) {
	base := config.Default()

	got := config.ApplyEnv(base)

	require.Equal(t, base, got)
}
