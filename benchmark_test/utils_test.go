package benchmark_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/store"
	"github.com/hupe1980/segstore/testutil"
)

// benchShape matches a 2 s window at 128 Hz over a 19-channel montage.
var benchShape = model.Shape{Channels: 19, Length: 256}

// buildStore writes rows Gaussian segments and returns the store path.
func buildStore(b *testing.B, rows int) string {
	b.Helper()
	ctx := context.Background()
	path := filepath.Join(b.TempDir(), "segments.db")
	rng := testutil.NewRNG(42)

	w, err := store.Create(ctx, path, benchShape)
	if err != nil {
		b.Fatal(err)
	}
	for i := range rows {
		rec := rng.Gaussian(benchShape.Channels, benchShape.Length)
		if _, err := w.Append(ctx, model.Row{
			DatasetID:     fmt.Sprintf("ds%06d", i%3),
			SubjectID:     fmt.Sprintf("sub-%03d", i%50),
			SegmentNumber: i / 50,
			Window:        model.Window{Shape: benchShape, Data: rec.Data},
		}); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Commit(); err != nil {
		b.Fatal(err)
	}
	return path
}
