package segstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/store"
	"github.com/hupe1980/segstore/testutil"
)

// fakeRecordings maps paths to recordings or errors.
type fakeRecordings map[string]any

func (f fakeRecordings) Process(_ context.Context, path string) (model.Recording, error) {
	switch v := f[path].(type) {
	case model.Recording:
		return v, nil
	case error:
		return model.Recording{}, v
	default:
		return model.Recording{}, preprocess.ErrUnsupported
	}
}

func populateConfig(dir string) PopulateConfig {
	return PopulateConfig{
		Path:     filepath.Join(dir, "segments.db"),
		Channels: 2,
		Segmenter: segmenter.Config{
			WindowSeconds: 1,
			TargetRate:    4,
			MaxWindows:    100,
			Selection:     segmenter.SelectEven,
		},
	}
}

func TestPopulate(t *testing.T) {
	dir := t.TempDir()
	cfg := populateConfig(dir)

	a := testutil.RecordingPath(dir, "ds000001", "sub-01", ".edf")
	b := testutil.RecordingPath(dir, "ds000001", "sub-02", ".edf")
	c := testutil.RecordingPath(dir, "ds000002", "sub-01", ".edf")
	noIDs := filepath.Join(dir, "loose.edf")
	short := testutil.RecordingPath(dir, "ds000003", "sub-09", ".edf")
	wide := testutil.RecordingPath(dir, "ds000003", "sub-10", ".edf")
	broken := testutil.RecordingPath(dir, "ds000003", "sub-11", ".edf")

	pre := fakeRecordings{
		a:      testutil.Ramp(2, 10), // offsets 0, 4
		b:      testutil.Ramp(2, 4),  // offset 0
		c:      testutil.Ramp(2, 13), // offsets 0, 4, 8
		noIDs:  testutil.Ramp(2, 10),
		short:  testutil.Ramp(2, 3),
		wide:   testutil.Ramp(3, 10),
		broken: errors.New("bad header"),
	}
	paths := []string{a, noIDs, b, short, c, wide, broken}

	m := &BasicMetricsCollector{}
	rep, err := Populate(context.Background(), cfg, paths, pre, WithMetrics(m), WithLogger(NoopLogger()))
	require.NoError(t, err)

	assert.Equal(t, 7, rep.Files)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, int64(6), rep.Rows)
	assert.Equal(t, 2, rep.Datasets)
	assert.Equal(t, 3, rep.Subjects)
	assert.Equal(t, model.Shape{Channels: 2, Length: 4}, rep.Shape)
	assert.Equal(t, 4, rep.SkippedTotal())
	assert.Equal(t, map[SkipReason]int{
		SkipNoIDs:      1,
		SkipTooShort:   1,
		SkipChannels:   1,
		SkipPreprocess: 1,
	}, rep.Skipped)
	assert.Equal(t, []SkipReason{SkipChannels, SkipNoIDs, SkipPreprocess, SkipTooShort}, rep.SkipReasons())

	st := m.GetStats()
	assert.Equal(t, int64(3), st.FilesProcessed)
	assert.Equal(t, int64(4), st.FilesSkipped)
	assert.Equal(t, int64(6), st.RowsWritten)
	assert.Equal(t, int64(1), st.PopulateRuns)

	r, err := store.OpenReader(context.Background(), cfg.Path, cfg.Channels)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 6, r.Count())

	want := []struct {
		dataset, subject string
		offset           int
	}{
		{"ds000001", "sub-01", 0},
		{"ds000001", "sub-01", 4},
		{"ds000001", "sub-02", 0},
		{"ds000002", "sub-01", 0},
		{"ds000002", "sub-01", 4},
		{"ds000002", "sub-01", 8},
	}
	for i, w := range want {
		s, err := r.Get(context.Background(), i)
		require.NoError(t, err)
		assert.Equal(t, w.dataset, s.DatasetID, "row %d", i)
		assert.Equal(t, w.subject, s.SubjectID, "row %d", i)
		assert.Equal(t, w.offset, testutil.Origin(s.Data), "row %d", i)
		assert.True(t, testutil.IsRampWindow(s.Data, 2, 4), "row %d", i)
	}

	st2, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st2.Subjects)
}

func TestPopulateReplacesGeneration(t *testing.T) {
	dir := t.TempDir()
	cfg := populateConfig(dir)
	path := testutil.RecordingPath(dir, "ds000001", "sub-01", ".edf")
	ctx := context.Background()

	_, err := Populate(ctx, cfg, []string{path}, fakeRecordings{path: testutil.Ramp(2, 40)})
	require.NoError(t, err)
	rep, err := Populate(ctx, cfg, []string{path}, fakeRecordings{path: testutil.Ramp(2, 8)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Rows)

	r, err := store.OpenReader(ctx, cfg.Path, cfg.Channels)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.Count())
}

func TestPopulateCancelKeepsPreviousGeneration(t *testing.T) {
	dir := t.TempDir()
	cfg := populateConfig(dir)
	first := testutil.RecordingPath(dir, "ds000001", "sub-01", ".edf")
	second := testutil.RecordingPath(dir, "ds000001", "sub-02", ".edf")

	_, err := Populate(context.Background(), cfg, []string{first}, fakeRecordings{first: testutil.Ramp(2, 12)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	pre := preprocess.Func(func(ctx context.Context, path string) (model.Recording, error) {
		if path == second {
			cancel()
			return model.Recording{}, ctx.Err()
		}
		return testutil.Ramp(2, 40), nil
	})
	m := &BasicMetricsCollector{}
	_, err = Populate(ctx, cfg, []string{first, second}, pre, WithMetrics(m))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), m.GetStats().PopulateErrors)

	r, err := store.OpenReader(context.Background(), cfg.Path, cfg.Channels)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.Count())

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPopulateNoRecordings(t *testing.T) {
	cfg := populateConfig(t.TempDir())
	rep, err := Populate(context.Background(), cfg, nil, fakeRecordings{})
	require.NoError(t, err)
	assert.Zero(t, rep.Rows)

	r, err := store.OpenReader(context.Background(), cfg.Path, cfg.Channels)
	require.NoError(t, err)
	defer r.Close()
	assert.Zero(t, r.Count())
}

func TestPopulateInvalidConfig(t *testing.T) {
	ctx := context.Background()
	good := populateConfig(t.TempDir())

	noPath := good
	noPath.Path = ""
	_, err := Populate(ctx, noPath, nil, fakeRecordings{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	noChannels := good
	noChannels.Channels = 0
	_, err = Populate(ctx, noChannels, nil, fakeRecordings{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	badWindow := good
	badWindow.Segmenter.OverlapFactor = 1
	_, err = Populate(ctx, badWindow, nil, fakeRecordings{})
	assert.ErrorIs(t, err, segmenter.ErrInvalidConfig)

	_, err = Populate(ctx, good, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPopulateLogsSkips(t *testing.T) {
	dir := t.TempDir()
	cfg := populateConfig(dir)
	loose := filepath.Join(dir, "loose.edf")

	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Populate(context.Background(), cfg, []string{loose}, fakeRecordings{}, WithLogger(logger))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "recording skipped")
	assert.Contains(t, out, "reason=no_ids")
	assert.Contains(t, out, "populate completed")
}
