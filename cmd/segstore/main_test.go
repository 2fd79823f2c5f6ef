package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/testutil"
)

// workspace lays out raw recordings, their .npy twins and a config file.
func workspace(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	data := filepath.Join(dir, "raw")
	pre := filepath.Join(dir, "pre")

	for _, sub := range []string{"sub-01", "sub-02"} {
		raw := testutil.RecordingPath(data, "ds004504", sub, ".set")
		require.NoError(t, os.MkdirAll(filepath.Dir(raw), 0o755))
		require.NoError(t, os.WriteFile(raw, nil, 0o644))

		npy := testutil.RecordingPath(pre, "ds004504", sub, ".npy")
		require.NoError(t, os.MkdirAll(filepath.Dir(npy), 0o755))
		require.NoError(t, os.WriteFile(npy, preprocess.EncodeNPY(testutil.Ramp(2, 12)), 0o644))
	}

	cfgPath = filepath.Join(dir, "segstore.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
db_path: %s
data_dir: %s
preprocessed_dir: %s
montage: [C3-Cz, Cz-C4]
window_seconds: 1
target_rate: 4
overlap_factor: 0.5
max_windows: 3
selection: even
seed: 1
loader:
  batch_size: 2
  workers: 2
  prefetch: 1
  drop_last: false
publish:
  backend: local
  dir: %s
  compression: zstd
`, filepath.Join(dir, "segments.db"), data, pre, filepath.Join(dir, "published"))), 0o644))
	return dir, cfgPath
}

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestEndToEnd(t *testing.T) {
	dir, cfg := workspace(t)
	noEnv := filepath.Join(dir, "missing.env")

	out, errOut, code := runCLI(t, "populate", "-config", cfg, "-env", noEnv)
	require.Equal(t, 0, code, errOut)
	assert.Regexp(t, `rows\s+6`, out)
	assert.Regexp(t, `shape\s+2x4`, out)

	out, errOut, code = runCLI(t, "inspect", "-config", cfg, "-env", noEnv)
	require.Equal(t, 0, code, errOut)
	assert.Regexp(t, `ds004504\s+6\s+2`, out)
	assert.Contains(t, out, "verified 6 rows")

	out, errOut, code = runCLI(t, "load", "-config", cfg, "-env", noEnv, "-epochs", "2")
	require.Equal(t, 0, code, errOut)
	assert.Regexp(t, `(?m)^1\s+3\s+6\s`, out)
	assert.Regexp(t, `(?m)^2\s+3\s+6\s`, out)
	assert.Contains(t, out, "rows read 12")

	out, errOut, code = runCLI(t, "publish", "-config", cfg, "-env", noEnv)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "6 rows")

	out, errOut, code = runCLI(t, "generations", "-config", cfg, "-env", noEnv)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "*")

	fetched := filepath.Join(dir, "fetched", "segments.db")
	out, errOut, code = runCLI(t, "fetch", "-config", cfg, "-env", noEnv, "-out", fetched)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "fetched")

	want, err := os.ReadFile(filepath.Join(dir, "segments.db"))
	require.NoError(t, err)
	got, err := os.ReadFile(fetched)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadSubset(t *testing.T) {
	dir, cfg := workspace(t)
	noEnv := filepath.Join(dir, "missing.env")

	_, errOut, code := runCLI(t, "populate", "-config", cfg, "-env", noEnv)
	require.Equal(t, 0, code, errOut)

	out, errOut, code := runCLI(t, "load", "-config", cfg, "-env", noEnv, "-holdout", "0.5")
	require.Equal(t, 0, code, errOut)
	assert.Regexp(t, `(?m)^1\s+2\s+3\s`, out)

	out, errOut, code = runCLI(t, "load", "-config", cfg, "-env", noEnv, "-datasets", "ds000001")
	require.Equal(t, 0, code, errOut)
	assert.Regexp(t, `(?m)^1\s+0\s+0\s`, out)
}

func TestUsage(t *testing.T) {
	_, errOut, code := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "populate")

	_, errOut, code = runCLI(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "bogus"`)

	_, _, code = runCLI(t, "inspect", "-nope")
	assert.Equal(t, 2, code)

	_, errOut, code = runCLI(t, "inspect", "-h")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "check ids and payload sizes")
}

func TestCommandError(t *testing.T) {
	dir, cfg := workspace(t)

	_, errOut, code := runCLI(t, "inspect", "-config", cfg, "-env", filepath.Join(dir, "missing.env"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "segstore inspect")
}
