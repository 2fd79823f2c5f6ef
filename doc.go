// Package segstore turns multichannel EEG recordings into a store of
// fixed-length segments and feeds them back as training batches.
//
// The pipeline has two halves that share only the store file:
//
//   - Populate walks recording paths, derives dataset and subject ids from
//     each path, runs an external Preprocessor, cuts C × L windows with the
//     segmenter and rebuilds the SQLite-backed store in one atomic swap.
//   - Loader opens one read-only connection per worker and yields batches
//     of B × C × L float32 segments, strictly in order, with bounded
//     prefetch.
//
// # Quick Start
//
//	cfg, _ := config.Load("segstore.yaml")
//	paths, _ := discover.Find(ctx, cfg.DataDir, cfg.Patterns...)
//
//	report, err := segstore.Populate(ctx, cfg.PopulateConfig(), paths,
//	    preprocess.NPY{Channels: cfg.Channels(), Resolve: cfg.NPYResolver()},
//	    segstore.WithLogger(segstore.NewTextLogger(slog.LevelInfo)),
//	)
//
//	loader, _ := segstore.NewLoader(ctx, store.NewOpener(cfg.DBPath, cfg.Channels()), cfg.LoaderConfig())
//	defer loader.Close()
//	for batch, err := range loader.Batches(ctx) {
//	    if err != nil { ... }
//	    train(batch.Segments) // B × C × L, row-major
//	}
//
// # Store Format
//
// One table (default eeg_data) with columns id, dataset_id, subject_id,
// segment_number, channels, length and segment. Row ids run 1..N without
// gaps; row index i is id i+1. segment holds C × L little-endian float32
// values, channel-major, with no header.
//
// # Generations
//
// Populate builds a new generation in a temp file and renames it over the
// store path. Readers opened earlier keep their generation until closed.
// The publish package ships sealed generations to S3, MinIO or a local
// directory and fetches them back.
package segstore
