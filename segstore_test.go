package segstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/store"
	"github.com/hupe1980/segstore/testutil"
)

var testShape = model.Shape{Channels: 2, Length: 4}

// buildStore writes n rows whose first value encodes the row index.
func buildStore(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "segments.db")

	w, err := store.Create(ctx, path, testShape)
	require.NoError(t, err)
	for i := range n {
		data := make([]float32, testShape.Samples())
		for j := range data {
			data[j] = float32(i*testutil.Scale + j)
		}
		_, err := w.Append(ctx, model.Row{
			DatasetID:     fmt.Sprintf("ds%06d", 1+i%2),
			SubjectID:     fmt.Sprintf("sub-%02d", i%4),
			SegmentNumber: i,
			Window:        model.Window{Shape: testShape, Data: data},
		})
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())
	return path
}

func rowOf(segment []float32) int {
	return int(segment[0]) / testutil.Scale
}

