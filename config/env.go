package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/segmenter"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SEGSTORE_"

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

var envVars = []envVar{
	{"DB_PATH", setString(func(c *Config) *string { return &c.DBPath })},
	{"DATA_DIR", setString(func(c *Config) *string { return &c.DataDir })},
	{"PATTERNS", setList(func(c *Config) *[]string { return &c.Patterns })},
	{"PREPROCESSED_DIR", setString(func(c *Config) *string { return &c.PreprocessedDir })},
	{"TABLE", setString(func(c *Config) *string { return &c.Table })},
	{"MONTAGE", setList(func(c *Config) *[]string { return &c.Montage })},
	{"WINDOW_SECONDS", setParsed(func(c *Config) *float64 { return &c.WindowSeconds }, parseFloat)},
	{"TARGET_RATE", setParsed(func(c *Config) *float64 { return &c.TargetRate }, parseFloat)},
	{"OVERLAP_FACTOR", setParsed(func(c *Config) *float64 { return &c.OverlapFactor }, parseFloat)},
	{"MAX_WINDOWS", setParsed(func(c *Config) *int { return &c.MaxWindows }, strconv.Atoi)},
	{"SELECTION", setParsed(func(c *Config) *segmenter.Selection { return &c.Selection }, segmenter.ParseSelection)},
	{"SEED", setParsed(func(c *Config) *uint64 { return &c.Seed }, parseUint)},
	{"BATCH_SIZE", setParsed(func(c *Config) *int { return &c.Loader.BatchSize }, strconv.Atoi)},
	{"SHUFFLE", setParsed(func(c *Config) *bool { return &c.Loader.Shuffle }, strconv.ParseBool)},
	{"WORKERS", setParsed(func(c *Config) *int { return &c.Loader.Workers }, strconv.Atoi)},
	{"DROP_LAST", setParsed(func(c *Config) *bool { return &c.Loader.DropLast }, strconv.ParseBool)},
	{"PREFETCH", setParsed(func(c *Config) *int { return &c.Loader.Prefetch }, strconv.Atoi)},
	{"MEMORY_LIMIT", setParsed(func(c *Config) *int64 { return &c.MemoryLimit }, parseInt64)},
	{"IO_LIMIT", setParsed(func(c *Config) *int64 { return &c.IOLimit }, parseInt64)},
	{"LOG_LEVEL", setString(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", setString(func(c *Config) *string { return &c.Log.Format })},
	{"PUBLISH_BACKEND", setString(func(c *Config) *string { return &c.Publish.Backend })},
	{"PUBLISH_DIR", setString(func(c *Config) *string { return &c.Publish.Dir })},
	{"BUCKET", setString(func(c *Config) *string { return &c.Publish.Bucket })},
	{"PREFIX", setString(func(c *Config) *string { return &c.Publish.Prefix })},
	{"ENDPOINT", setString(func(c *Config) *string { return &c.Publish.Endpoint })},
	{"REGION", setString(func(c *Config) *string { return &c.Publish.Region })},
	{"ACCESS_KEY", setString(func(c *Config) *string { return &c.Publish.AccessKey })},
	{"SECRET_KEY", setString(func(c *Config) *string { return &c.Publish.SecretKey })},
	{"USE_SSL", setParsed(func(c *Config) *bool { return &c.Publish.UseSSL }, strconv.ParseBool)},
	{"COMPRESSION", setParsed(func(c *Config) *codec.Compression { return &c.Publish.Compression }, codec.ParseCompression)},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, v := range envVars {
		key := EnvPrefix + v.name
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := v.set(c, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
	}
	return nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, f := range files {
		vars, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read env file %s: %w", f, err)
		}
		// Earlier files win, matching godotenv.Load.
		for k, v := range vars {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out, nil
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setList(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var items []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		*field(c) = items
		return nil
	}
}

func setParsed[T any](field func(*Config) *T, parse func(string) (T, error)) func(*Config, string) error {
	return func(c *Config, v string) error {
		parsed, err := parse(v)
		if err != nil {
			return err
		}
		*field(c) = parsed
		return nil
	}
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseUint(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }
