package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/store"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Source{Lookup: noEnv}.Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Channels())
	assert.Equal(t, 256, cfg.WindowLength())
	assert.Equal(t, model.Shape{Channels: 12, Length: 256}, cfg.Shape())
	assert.Equal(t, 128, cfg.SegmenterConfig().Stride())

	lc := cfg.LoaderConfig()
	assert.Equal(t, 32, lc.BatchSize)
	assert.True(t, lc.Shuffle)
	assert.True(t, lc.DropLast)
	assert.Equal(t, BackendLocal, cfg.Publish.Backend)
	assert.Equal(t, codec.CompressionZSTD, cfg.Publish.Compression)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "segstore.yaml", `
db_path: /var/lib/eeg/segments.db
data_dir: /mnt/bids
montage: [Fp1-F7, F7-T3, T3-T5]
window_seconds: 1
target_rate: 256
overlap_factor: 0.25
max_windows: 40
selection: even
seed: 42
loader:
  batch_size: 16
  workers: 2
  prefetch: 3
publish:
  backend: s3
  bucket: eeg-generations
  prefix: prod
  compression: lz4
`)

	cfg, err := Source{File: file, Lookup: noEnv}.Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/eeg/segments.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.Channels())
	assert.Equal(t, 256, cfg.WindowLength())
	assert.Equal(t, segmenter.SelectEven, cfg.Selection)
	assert.Equal(t, 192, cfg.SegmenterConfig().Stride())

	lc := cfg.LoaderConfig()
	assert.Equal(t, 16, lc.BatchSize)
	assert.Equal(t, 2, lc.Workers)
	assert.Equal(t, 3, lc.Prefetch)
	assert.Equal(t, uint64(42), lc.Seed)
	// Unset keys keep their defaults.
	assert.True(t, lc.Shuffle)
	assert.Equal(t, store.DefaultTable, cfg.Table)

	pc := cfg.PopulateConfig()
	assert.Equal(t, cfg.DBPath, pc.Path)
	assert.Equal(t, 3, pc.Channels)
	assert.Equal(t, uint64(42), pc.Segmenter.Seed)

	assert.Equal(t, "eeg-generations", cfg.Publish.Bucket)
	assert.Equal(t, codec.CompressionLZ4, cfg.Publish.Compression)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "segstore.yaml", "db_path: from-file.db\nmax_windows: 10\n")
	dotenv := writeFile(t, dir, ".env", "SEGSTORE_DB_PATH=from-dotenv.db\nSEGSTORE_BATCH_SIZE=8\n")

	cfg, err := Source{
		File:     file,
		EnvFiles: []string{dotenv, filepath.Join(dir, "missing.env")},
		Lookup: envMap(map[string]string{
			"SEGSTORE_DB_PATH":  "from-env.db",
			"SEGSTORE_MONTAGE":  "A-B, C-D ,",
			"SEGSTORE_SHUFFLE":  "false",
			"SEGSTORE_IO_LIMIT": "1048576",
		}),
	}.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, 8, cfg.Loader.BatchSize)
	assert.Equal(t, 10, cfg.MaxWindows)
	assert.Equal(t, []string{"A-B", "C-D"}, cfg.Montage)
	assert.False(t, cfg.Loader.Shuffle)
	assert.Equal(t, int64(1<<20), cfg.ResourceConfig().IOLimitBytesPerSec)
}

func TestEnvParseError(t *testing.T) {
	_, err := Source{Lookup: envMap(map[string]string{"SEGSTORE_WORKERS": "many"})}.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEGSTORE_WORKERS")

	_, err = Source{Lookup: envMap(map[string]string{"SEGSTORE_SELECTION": "sorted"})}.Load()
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := Source{File: filepath.Join(t.TempDir(), "nope.yaml"), Lookup: noEnv}.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyDBPath", func(c *Config) { c.DBPath = "" }},
		{"EmptyMontage", func(c *Config) { c.Montage = nil }},
		{"BlankChannel", func(c *Config) { c.Montage = []string{"A-B", " "} }},
		{"ZeroWindow", func(c *Config) { c.WindowSeconds = 0 }},
		{"FullOverlap", func(c *Config) { c.OverlapFactor = 1 }},
		{"NoWindows", func(c *Config) { c.MaxWindows = 0 }},
		{"ZeroBatch", func(c *Config) { c.Loader.BatchSize = 0 }},
		{"NegativeLimit", func(c *Config) { c.IOLimit = -1 }},
		{"TinyMemoryLimit", func(c *Config) { c.MemoryLimit = 1024 }},
		{"BadLevel", func(c *Config) { c.Log.Level = "loud" }},
		{"BadFormat", func(c *Config) { c.Log.Format = "xml" }},
		{"BadBackend", func(c *Config) { c.Publish.Backend = "ftp" }},
		{"S3WithoutBucket", func(c *Config) { c.Publish.Backend = BackendS3 }},
		{"MinioWithoutEndpoint", func(c *Config) {
			c.Publish.Backend = BackendMinio
			c.Publish.Bucket = "b"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestNPYResolver(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/mnt/bids"

	resolve := cfg.NPYResolver()
	assert.Equal(t, "/mnt/bids/ds001/sub-01/eeg/rest.npy", resolve("/mnt/bids/ds001/sub-01/eeg/rest.edf"))

	cfg.PreprocessedDir = "/mnt/pre"
	resolve = cfg.NPYResolver()
	assert.Equal(t, "/mnt/pre/ds001/sub-01/eeg/rest.npy", resolve("/mnt/bids/ds001/sub-01/eeg/rest.edf"))
	assert.Equal(t, "/elsewhere/x.npy", resolve("/elsewhere/x.set"))
}

func TestStoreOptions(t *testing.T) {
	cfg := Default()
	cfg.Table = "windows"
	opts := store.Options{Table: store.DefaultTable}
	cfg.StoreOptions(&opts)
	assert.Equal(t, "windows", opts.Table)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "debug", Format: "json"}
	require.NoError(t, cfg.Validate())
	assert.NotNil(t, cfg.Logger())
}
