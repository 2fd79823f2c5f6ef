package segstore

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/resource"
	"github.com/hupe1980/segstore/store"
)

func newLoader(t *testing.T, path string, cfg LoaderConfig, opts ...Option) *Loader {
	t.Helper()
	l, err := NewLoader(context.Background(), store.NewOpener(path, testShape.Channels), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func collect(t *testing.T, l *Loader) ([]model.Batch, error) {
	t.Helper()
	var out []model.Batch
	for b, err := range l.Batches(context.Background()) {
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

func sequential(batchSize, workers int, dropLast bool) LoaderConfig {
	return LoaderConfig{BatchSize: batchSize, Workers: workers, Prefetch: 2, DropLast: dropLast}
}

func TestLoaderBatchCount(t *testing.T) {
	path := buildStore(t, 10)

	tests := []struct {
		name     string
		dropLast bool
		sizes    []int
	}{
		{"DropLast", true, []int{4, 4}},
		{"KeepLast", false, []int{4, 4, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLoader(t, path, sequential(4, 3, tt.dropLast))
			assert.Equal(t, len(tt.sizes), l.Len())
			assert.Equal(t, 10, l.Size())

			batches, err := collect(t, l)
			require.NoError(t, err)
			require.Len(t, batches, len(tt.sizes))
			for i, b := range batches {
				assert.Equal(t, tt.sizes[i], b.Len())
				assert.Equal(t, testShape, b.Shape)
				assert.Len(t, b.Segments, b.Len()*testShape.Samples())
			}
		})
	}
}

func TestLoaderPreservesOrder(t *testing.T) {
	path := buildStore(t, 23)
	l := newLoader(t, path, sequential(3, 4, false))

	batches, err := collect(t, l)
	require.NoError(t, err)

	next := 0
	for _, b := range batches {
		for k, idx := range b.Indices {
			require.Equal(t, next, idx)
			seg := b.Segment(k)
			assert.Equal(t, idx, rowOf(seg))
			assert.Equal(t, float32(idx*1_000_000+testShape.Samples()-1), seg[len(seg)-1])
			next++
		}
	}
	assert.Equal(t, 23, next)
}

func TestLoaderMetadata(t *testing.T) {
	path := buildStore(t, 4)
	l := newLoader(t, path, sequential(4, 1, true))

	batches, err := collect(t, l)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"ds000001", "ds000002", "ds000001", "ds000002"}, batches[0].DatasetIDs)
	assert.Equal(t, []string{"sub-00", "sub-01", "sub-02", "sub-03"}, batches[0].SubjectIDs)
}

func TestLoaderShuffle(t *testing.T) {
	path := buildStore(t, 32)
	cfg := LoaderConfig{BatchSize: 8, Shuffle: true, Workers: 2, Prefetch: 1, DropLast: true, Seed: 7}

	indices := func(l *Loader) []int {
		batches, err := collect(t, l)
		require.NoError(t, err)
		var out []int
		for _, b := range batches {
			for k, idx := range b.Indices {
				require.Equal(t, idx, rowOf(b.Segment(k)))
			}
			out = append(out, b.Indices...)
		}
		return out
	}

	a := newLoader(t, path, cfg)
	first := indices(a)
	second := indices(a)
	require.Len(t, first, 32)
	assert.ElementsMatch(t, first, second)
	assert.NotEqual(t, first, second, "each epoch draws a fresh permutation")

	b := newLoader(t, path, cfg)
	assert.Equal(t, first, indices(b), "same seed, same order")
}

func TestLoaderSubset(t *testing.T) {
	path := buildStore(t, 10)
	subset := roaring.BitmapOf(1, 3, 5, 7, 9)

	l := newLoader(t, path, sequential(2, 2, false), WithSubset(subset))
	assert.Equal(t, 5, l.Size())
	assert.Equal(t, 3, l.Len())

	batches, err := collect(t, l)
	require.NoError(t, err)
	var got []int
	for _, b := range batches {
		got = append(got, b.Indices...)
	}
	assert.Equal(t, []int{1, 3, 5, 7, 9}, got)

	_, err = NewLoader(context.Background(), store.NewOpener(path, testShape.Channels),
		sequential(2, 1, false), WithSubset(roaring.BitmapOf(2, 10)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoaderEmptyStore(t *testing.T) {
	path := buildStore(t, 0)
	l := newLoader(t, path, sequential(4, 2, false))

	assert.Equal(t, 0, l.Len())
	batches, err := collect(t, l)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestLoaderPropagatesRowError(t *testing.T) {
	path := buildStore(t, 10)

	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE eeg_data SET segment = ? WHERE id = 6`, []byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	l := newLoader(t, path, sequential(2, 1, false))
	batches, err := collect(t, l)
	require.ErrorIs(t, err, ErrCorruptPayload)
	assert.Len(t, batches, 2)

	// The loader stays usable and fails the same way next epoch.
	_, err = collect(t, l)
	assert.ErrorIs(t, err, ErrCorruptPayload)
}

func TestLoaderMemoryBudget(t *testing.T) {
	path := buildStore(t, 12)
	batchBytes := int64(2 * testShape.PayloadSize())

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * batchBytes})
	l := newLoader(t, path, sequential(2, 4, false), WithResources(rc))

	batches, err := collect(t, l)
	require.NoError(t, err)
	assert.Len(t, batches, 6)
	assert.Zero(t, rc.MemoryUsage())

	small := resource.NewController(resource.Config{MemoryLimitBytes: batchBytes - 1})
	l2 := newLoader(t, path, sequential(2, 1, false), WithResources(small))
	_, err = collect(t, l2)
	assert.ErrorIs(t, err, resource.ErrExceedsLimit)
	assert.Zero(t, small.MemoryUsage())
}

func TestLoaderEarlyClose(t *testing.T) {
	path := buildStore(t, 20)
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	l := newLoader(t, path, sequential(2, 2, false), WithResources(rc))

	it := l.Epoch(context.Background())
	require.True(t, it.Next())
	assert.Equal(t, 1, it.Epoch())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Zero(t, rc.MemoryUsage())

	// Breaking out of the range loop ends the epoch too.
	for range l.Batches(context.Background()) {
		break
	}
	batches, err := collect(t, l)
	require.NoError(t, err)
	assert.Len(t, batches, 10)
}

func TestLoaderEpochActive(t *testing.T) {
	path := buildStore(t, 8)
	l := newLoader(t, path, sequential(2, 1, false))

	it := l.Epoch(context.Background())
	defer it.Close()

	second := l.Epoch(context.Background())
	assert.False(t, second.Next())
	assert.ErrorIs(t, second.Err(), ErrEpochActive)
}

func TestLoaderCanceledContext(t *testing.T) {
	path := buildStore(t, 8)
	l := newLoader(t, path, sequential(2, 2, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := l.Epoch(ctx)
	defer it.Close()
	for it.Next() {
	}
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestLoaderClosed(t *testing.T) {
	path := buildStore(t, 4)
	l, err := NewLoader(context.Background(), store.NewOpener(path, testShape.Channels), sequential(2, 1, false))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err = collect(t, l)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoaderCloseDuringEpoch(t *testing.T) {
	path := buildStore(t, 200)
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	l := newLoader(t, path, sequential(2, 4, false), WithResources(rc))

	it := l.Epoch(context.Background())
	defer it.Close()
	require.True(t, it.Next())

	require.NoError(t, l.Close())

	for it.Next() {
	}
	// The bare sentinel, not a wrapped reader failure from a worker.
	assert.Equal(t, ErrClosed, it.Err())
	assert.Less(t, it.batches, l.Len())
	require.NoError(t, it.Close())
	assert.Zero(t, rc.MemoryUsage())

	_, err := collect(t, l)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoaderConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultLoaderConfig().Validate())

	for _, cfg := range []LoaderConfig{
		{BatchSize: 0, Workers: 1, Prefetch: 1},
		{BatchSize: 1, Workers: 0, Prefetch: 1},
		{BatchSize: 1, Workers: 1, Prefetch: 0},
	} {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	}

	_, err := NewLoader(context.Background(), store.NewOpener("unused", 2), LoaderConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoaderMetrics(t *testing.T) {
	path := buildStore(t, 6)
	m := &BasicMetricsCollector{}
	l := newLoader(t, path, sequential(3, 2, false), WithMetrics(m))

	_, err := collect(t, l)
	require.NoError(t, err)

	st := m.GetStats()
	assert.Equal(t, int64(6), st.GetCount)
	assert.Equal(t, int64(2), st.BatchCount)
	assert.Equal(t, int64(6), st.BatchSamples)
	assert.Zero(t, st.GetErrors)
}
