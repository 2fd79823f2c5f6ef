package benchmark_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/testutil"
)

func BenchmarkPopulate(b *testing.B) {
	const subjects = 20
	dir := b.TempDir()
	rng := testutil.NewRNG(7)

	paths := make([]string, subjects)
	recs := make(map[string]model.Recording, subjects)
	for i := range paths {
		paths[i] = testutil.RecordingPath(dir, "ds004504", "sub-"+string(rune('A'+i)), ".set")
		// 60 s at 128 Hz
		recs[paths[i]] = rng.Gaussian(benchShape.Channels, 60*128)
	}
	pre := preprocess.Func(func(_ context.Context, path string) (model.Recording, error) {
		return recs[path], nil
	})

	cfg := segstore.PopulateConfig{
		Path:     filepath.Join(dir, "segments.db"),
		Channels: benchShape.Channels,
		Segmenter: segmenter.Config{
			WindowSeconds: 2,
			TargetRate:    128,
			OverlapFactor: 0.5,
			MaxWindows:    100,
			Seed:          1,
		},
	}

	var rows int64
	for b.Loop() {
		rep, err := segstore.Populate(context.Background(), cfg, paths, pre)
		if err != nil {
			b.Fatal(err)
		}
		rows = rep.Rows
	}
	b.ReportMetric(float64(rows), "rows/op")
}
