package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/discover"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/publish"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/store"
	"github.com/hupe1980/segstore/testutil"
)

const channels = 3

// writeCorpus stores one Gaussian .npy recording per subject below root.
func writeCorpus(t *testing.T, root string, rng *testutil.RNG) {
	t.Helper()
	for _, ds := range []string{"ds000117", "ds002718"} {
		for _, sub := range []string{"sub-01", "sub-02", "sub-03"} {
			path := testutil.RecordingPath(root, ds, sub, ".npy")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			rec := rng.Gaussian(channels, 64+rng.Intn(64))
			require.NoError(t, os.WriteFile(path, preprocess.EncodeNPY(rec), 0o644))
		}
	}
}

func collect(t *testing.T, l *segstore.Loader) []model.Batch {
	t.Helper()
	var out []model.Batch
	for b, err := range l.Batches(context.Background()) {
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestE2E_PopulatePublishFetchLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	root := filepath.Join(dir, "bids")
	writeCorpus(t, root, testutil.NewRNG(4711))

	// 1. Discover and populate
	paths, err := discover.Find(ctx, root, "**.npy")
	require.NoError(t, err)
	require.Len(t, paths, 6)

	cfg := segstore.PopulateConfig{
		Path:     filepath.Join(dir, "segments.db"),
		Channels: channels,
		Segmenter: segmenter.Config{
			WindowSeconds: 0.5,
			TargetRate:    32,
			OverlapFactor: 0.5,
			MaxWindows:    4,
			Seed:          1,
		},
	}
	rep, err := segstore.Populate(ctx, cfg, paths, preprocess.NPY{Channels: channels})
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Processed)
	assert.Equal(t, int64(24), rep.Rows)
	assert.Equal(t, 2, rep.Datasets)
	assert.Equal(t, 6, rep.Subjects)

	// 2. Publish and fetch into a second location
	bs := blobstore.NewMemoryStore()
	m, err := publish.Publish(ctx, bs, cfg.Path, publish.Options{Compression: codec.CompressionZSTD, Channels: channels})
	require.NoError(t, err)
	assert.Equal(t, 24, m.Rows)

	fetched := filepath.Join(dir, "replica", "segments.db")
	_, err = publish.Fetch(ctx, bs, fetched, publish.Options{Channels: channels})
	require.NoError(t, err)

	// 3. Both stores serve identical epochs
	lc := segstore.LoaderConfig{BatchSize: 5, Shuffle: true, Workers: 3, Prefetch: 2, Seed: 99}
	src, err := segstore.NewLoader(ctx, store.NewOpener(cfg.Path, channels), lc)
	require.NoError(t, err)
	defer src.Close()
	dst, err := segstore.NewLoader(ctx, store.NewOpener(fetched, channels), lc)
	require.NoError(t, err)
	defer dst.Close()

	a, b := collect(t, src), collect(t, dst)
	require.Len(t, a, 5)
	assert.Equal(t, a, b)
	assert.Equal(t, 4, a[4].Len())
}

func TestE2E_SubjectSplit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	root := filepath.Join(dir, "bids")
	writeCorpus(t, root, testutil.NewRNG(7))

	paths, err := discover.Find(ctx, root, "**.npy")
	require.NoError(t, err)

	dbPath := filepath.Join(dir, "segments.db")
	_, err = segstore.Populate(ctx, segstore.PopulateConfig{
		Path:     dbPath,
		Channels: channels,
		Segmenter: segmenter.Config{
			WindowSeconds: 1,
			TargetRate:    16,
			MaxWindows:    3,
			Selection:     segmenter.SelectEven,
		},
	}, paths, preprocess.NPY{Channels: channels})
	require.NoError(t, err)

	open := store.NewOpener(dbPath, channels)
	r, err := open(ctx)
	require.NoError(t, err)
	idx, err := r.Index(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	train, holdout := idx.SplitSubjects(0.34, 3)
	require.False(t, train.Intersects(holdout))

	lc := segstore.LoaderConfig{BatchSize: 4, Workers: 2, Prefetch: 1}
	trainLoader, err := segstore.NewLoader(ctx, open, lc, segstore.WithSubset(train))
	require.NoError(t, err)
	defer trainLoader.Close()

	holdoutSubjects := make(map[string]bool)
	for _, k := range idx.Subjects() {
		if idx.Subject(k).Intersects(holdout) {
			holdoutSubjects[k.String()] = true
		}
	}
	require.Len(t, holdoutSubjects, 2)

	seen := 0
	for _, b := range collect(t, trainLoader) {
		for k := range b.Indices {
			key := store.SubjectKey{DatasetID: b.DatasetIDs[k], SubjectID: b.SubjectIDs[k]}
			assert.False(t, holdoutSubjects[key.String()], "holdout subject %s in training batch", key)
			seen++
		}
	}
	assert.Equal(t, int(train.GetCardinality()), seen)
}
