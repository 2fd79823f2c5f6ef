// Package config loads the process-wide settings of a segstore run.
//
// A Config is built once at startup from, in increasing precedence:
// built-in defaults, a YAML file, .env files and SEGSTORE_* environment
// variables. Components never see the whole Config; they receive the
// derived sub-configs (SegmenterConfig, LoaderConfig, PopulateConfig, ...).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/discover"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/resource"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/store"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Publish backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// DefaultMontage is the transverse bipolar montage used when none is configured.
var DefaultMontage = []string{
	"F7-F3", "F3-Fz", "Fz-F4", "F4-F8",
	"T3-C3", "C3-Cz", "Cz-C4", "C4-T4",
	"T5-P3", "P3-Pz", "Pz-P4", "P4-T6",
}

// Config holds every setting of a run.
type Config struct {
	// DBPath is the store file.
	DBPath string `yaml:"db_path"`
	// DataDir is the root searched for raw recordings.
	DataDir  string   `yaml:"data_dir"`
	Patterns []string `yaml:"patterns"`
	// PreprocessedDir mirrors DataDir with one .npy per recording. Empty
	// means the .npy sits next to its source file.
	PreprocessedDir string `yaml:"preprocessed_dir"`
	Table           string `yaml:"table"`

	// Montage names the channels in store order; its length is C.
	Montage []string `yaml:"montage"`

	WindowSeconds float64             `yaml:"window_seconds"`
	TargetRate    float64             `yaml:"target_rate"`
	OverlapFactor float64             `yaml:"overlap_factor"`
	MaxWindows    int                 `yaml:"max_windows"`
	Selection     segmenter.Selection `yaml:"selection"`
	// Seed fixes window selection and loader shuffling. Zero seeds from the clock.
	Seed uint64 `yaml:"seed"`

	Loader LoaderConfig `yaml:"loader"`

	// MemoryLimit caps the bytes of batches in flight. Zero is unlimited.
	MemoryLimit int64 `yaml:"memory_limit"`
	// IOLimit caps read bandwidth in bytes per second. Zero is unlimited.
	IOLimit int64 `yaml:"io_limit"`

	Log     LogConfig     `yaml:"log"`
	Publish PublishConfig `yaml:"publish"`
}

// LoaderConfig mirrors segstore.LoaderConfig without the seed, which is shared.
type LoaderConfig struct {
	BatchSize int  `yaml:"batch_size"`
	Shuffle   bool `yaml:"shuffle"`
	Workers   int  `yaml:"workers"`
	DropLast  bool `yaml:"drop_last"`
	Prefetch  int  `yaml:"prefetch"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// PublishConfig selects where generations are published.
type PublishConfig struct {
	Backend     string            `yaml:"backend"`
	Dir         string            `yaml:"dir"`
	Bucket      string            `yaml:"bucket"`
	Prefix      string            `yaml:"prefix"`
	Endpoint    string            `yaml:"endpoint"`
	Region      string            `yaml:"region"`
	AccessKey   string            `yaml:"access_key"`
	SecretKey   string            `yaml:"secret_key"`
	UseSSL      bool              `yaml:"use_ssl"`
	Compression codec.Compression `yaml:"compression"`
}

// Default returns the built-in settings.
func Default() Config {
	lc := segstore.DefaultLoaderConfig()
	return Config{
		DBPath:        "segments.db",
		DataDir:       "data",
		Patterns:      append([]string(nil), discover.DefaultPatterns...),
		Table:         store.DefaultTable,
		Montage:       append([]string(nil), DefaultMontage...),
		WindowSeconds: 2,
		TargetRate:    128,
		OverlapFactor: 0.5,
		MaxWindows:    100,
		Selection:     segmenter.SelectRandom,
		Loader: LoaderConfig{
			BatchSize: lc.BatchSize,
			Shuffle:   lc.Shuffle,
			Workers:   lc.Workers,
			DropLast:  lc.DropLast,
			Prefetch:  lc.Prefetch,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Publish: PublishConfig{
			Backend:     BackendLocal,
			Dir:         "published",
			UseSSL:      true,
			Compression: codec.CompressionZSTD,
		},
	}
}

// Load reads file (skipped when empty), then ./.env if present, then the
// process environment.
func Load(file string) (Config, error) {
	return Source{File: file, EnvFiles: []string{".env"}}.Load()
}

// Source describes where a Config comes from.
type Source struct {
	// File is a YAML file. Empty skips it; a missing file is an error.
	File string
	// EnvFiles are dotenv files. Missing files are skipped. Variables
	// already set in the environment win over these.
	EnvFiles []string
	// Lookup reads the environment. Default: os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// Load builds and validates the Config.
func (s Source) Load() (Config, error) {
	cfg := Default()

	if s.File != "" {
		if err := cfg.readFile(s.File); err != nil {
			return Config{}, err
		}
	}

	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	dotenv, err := readEnvFiles(s.EnvFiles)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalid)
	}
	if len(c.Montage) == 0 {
		return fmt.Errorf("%w: montage is empty", ErrInvalid)
	}
	for i, ch := range c.Montage {
		if strings.TrimSpace(ch) == "" {
			return fmt.Errorf("%w: montage channel %d is empty", ErrInvalid, i)
		}
	}
	if err := c.SegmenterConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.LoaderConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.MemoryLimit < 0 || c.IOLimit < 0 {
		return fmt.Errorf("%w: resource limits must not be negative", ErrInvalid)
	}
	if c.MemoryLimit > 0 {
		lc := c.LoaderConfig()
		if need := int64(lc.BatchSize) * int64(c.Shape().PayloadSize()); need > c.MemoryLimit {
			return fmt.Errorf("%w: memory_limit %d is smaller than one batch (%d bytes)", ErrInvalid, c.MemoryLimit, need)
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	switch c.Publish.Backend {
	case BackendLocal:
		if c.Publish.Dir == "" {
			return fmt.Errorf("%w: publish.dir is empty", ErrInvalid)
		}
	case BackendS3, BackendMinio:
		if c.Publish.Bucket == "" {
			return fmt.Errorf("%w: publish.bucket is empty", ErrInvalid)
		}
		if c.Publish.Backend == BackendMinio && c.Publish.Endpoint == "" {
			return fmt.Errorf("%w: publish.endpoint is required for minio", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown publish backend %q", ErrInvalid, c.Publish.Backend)
	}
	return nil
}

// Channels returns C, the montage length.
func (c Config) Channels() int { return len(c.Montage) }

// WindowLength returns L in samples.
func (c Config) WindowLength() int { return c.SegmenterConfig().WindowLength() }

// Shape returns the C × L shape of every stored segment.
func (c Config) Shape() model.Shape {
	return model.Shape{Channels: c.Channels(), Length: c.WindowLength()}
}

// SegmenterConfig returns the windowing policy.
func (c Config) SegmenterConfig() segmenter.Config {
	return segmenter.Config{
		WindowSeconds: c.WindowSeconds,
		TargetRate:    c.TargetRate,
		OverlapFactor: c.OverlapFactor,
		MaxWindows:    c.MaxWindows,
		Selection:     c.Selection,
		Seed:          c.Seed,
	}
}

// LoaderConfig returns the batching policy.
func (c Config) LoaderConfig() segstore.LoaderConfig {
	return segstore.LoaderConfig{
		BatchSize: c.Loader.BatchSize,
		Shuffle:   c.Loader.Shuffle,
		Workers:   c.Loader.Workers,
		DropLast:  c.Loader.DropLast,
		Prefetch:  c.Loader.Prefetch,
		Seed:      c.Seed,
	}
}

// PopulateConfig returns the population settings.
func (c Config) PopulateConfig() segstore.PopulateConfig {
	return segstore.PopulateConfig{
		Path:      c.DBPath,
		Channels:  c.Channels(),
		Segmenter: c.SegmenterConfig(),
	}
}

// ResourceConfig returns the loader's memory and bandwidth limits.
func (c Config) ResourceConfig() resource.Config {
	return resource.Config{
		MemoryLimitBytes:   c.MemoryLimit,
		IOLimitBytesPerSec: c.IOLimit,
	}
}

// StoreOptions sets the table name on store readers and writers.
func (c Config) StoreOptions(o *store.Options) {
	if c.Table != "" {
		o.Table = c.Table
	}
}

// NPYResolver maps a raw recording path to its preprocessed .npy file.
// Paths outside DataDir, or any path when PreprocessedDir is empty, keep
// their directory.
func (c Config) NPYResolver() func(string) string {
	return func(path string) string {
		npy := strings.TrimSuffix(path, filepath.Ext(path)) + ".npy"
		if c.PreprocessedDir == "" {
			return npy
		}
		root, err := filepath.Abs(c.DataDir)
		if err != nil {
			return npy
		}
		abs, err := filepath.Abs(npy)
		if err != nil {
			return npy
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return npy
		}
		return filepath.Join(c.PreprocessedDir, rel)
	}
}

// Logger builds the configured logger.
func (c Config) Logger() *segstore.Logger {
	level, _ := parseLevel(c.Log.Level)
	if strings.EqualFold(c.Log.Format, "json") {
		return segstore.NewJSONLogger(level)
	}
	return segstore.NewTextLogger(level)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
