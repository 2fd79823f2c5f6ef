package segstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/segstore/ident"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/store"
)

// SkipReason says why a recording contributed no rows.
type SkipReason string

const (
	SkipNoIDs      SkipReason = "no_ids"
	SkipPreprocess SkipReason = "preprocess"
	SkipChannels   SkipReason = "channels"
	SkipTooShort   SkipReason = "too_short"

	// OutcomeProcessed is the RecordFile outcome of a stored recording.
	OutcomeProcessed = "processed"
)

// PopulateConfig configures a population run.
type PopulateConfig struct {
	// Path is the store file to rebuild.
	Path string
	// Channels is the corpus-wide channel count C.
	Channels int
	// Segmenter fixes window length, overlap and the per-recording cap.
	Segmenter segmenter.Config
}

// Validate checks the config.
func (c PopulateConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: empty store path", ErrInvalidConfig)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidConfig, c.Channels)
	}
	return c.Segmenter.Validate()
}

// Report summarizes a population run.
type Report struct {
	Files     int
	Processed int
	Skipped   map[SkipReason]int
	Rows      int64
	Datasets  int
	Subjects  int
	Shape     model.Shape
	Duration  time.Duration
}

// SkippedTotal returns the number of skipped recordings.
func (r Report) SkippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// SkipReasons returns the reasons present in the report, sorted.
func (r Report) SkipReasons() []SkipReason {
	return slices.Sorted(maps.Keys(r.Skipped))
}

// Populate rebuilds the store at cfg.Path from paths, in order.
//
// Each recording is identified, preprocessed and segmented; its windows are
// appended with segment_number counting from zero. Recordings that fail any
// of those steps are logged and skipped. Failures of the store itself, and
// cancellation of ctx, abort the run and leave the previous generation in
// place. The new generation replaces the old one atomically on success.
func Populate(ctx context.Context, cfg PopulateConfig, paths []string, pre preprocess.Preprocessor, opts ...Option) (Report, error) {
	o := buildOptions(opts)
	start := time.Now()
	rep := Report{Skipped: make(map[SkipReason]int)}

	rep, err := populate(ctx, cfg, paths, pre, o, rep)
	rep.Duration = time.Since(start)

	o.metrics.RecordPopulate(rep.Rows, rep.Duration, err)
	o.logger.LogPopulate(ctx, rep, err)
	return rep, err
}

func populate(ctx context.Context, cfg PopulateConfig, paths []string, pre preprocess.Preprocessor, o options, rep Report) (_ Report, err error) {
	if err := cfg.Validate(); err != nil {
		return rep, err
	}
	if pre == nil {
		return rep, fmt.Errorf("%w: nil preprocessor", ErrInvalidConfig)
	}
	seg, err := segmenter.New(cfg.Segmenter)
	if err != nil {
		return rep, err
	}
	rep.Shape = model.Shape{Channels: cfg.Channels, Length: seg.WindowLength()}

	storeOpts := append([]func(*store.Options){func(so *store.Options) { so.Logger = o.logger.Logger }}, o.storeOpts...)
	w, err := store.Create(ctx, cfg.Path, rep.Shape, storeOpts...)
	if err != nil {
		return rep, fmt.Errorf("create store: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, w.Abort())
		}
	}()

	datasets := make(map[string]struct{})
	subjects := make(map[store.SubjectKey]struct{})

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Files++
		fileStart := time.Now()

		skip := func(reason SkipReason, cause error) {
			rep.Skipped[reason]++
			o.metrics.RecordFile(string(reason), 0, time.Since(fileStart))
			o.logger.LogFileSkipped(ctx, path, reason, cause)
		}

		ids, err := ident.Extract(path)
		if err != nil {
			skip(SkipNoIDs, err)
			continue
		}

		rec, err := pre.Process(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, ctxErr
			}
			if errors.Is(err, preprocess.ErrChannelMismatch) {
				skip(SkipChannels, err)
			} else {
				skip(SkipPreprocess, err)
			}
			continue
		}
		if err := preprocess.CheckChannels(rec, cfg.Channels); err != nil {
			skip(SkipChannels, err)
			continue
		}

		windows, err := seg.Split(rec)
		if err != nil {
			if errors.Is(err, segmenter.ErrNoSegments) {
				skip(SkipTooShort, err)
			} else {
				skip(SkipPreprocess, err)
			}
			continue
		}

		for i, win := range windows {
			if _, err := w.Append(ctx, model.Row{
				DatasetID:     ids.DatasetID,
				SubjectID:     ids.SubjectID,
				SegmentNumber: i,
				Window:        win,
			}); err != nil {
				return rep, fmt.Errorf("%s: %w", path, err)
			}
		}

		rep.Processed++
		rep.Rows = w.Rows()
		datasets[ids.DatasetID] = struct{}{}
		subjects[store.SubjectKey{DatasetID: ids.DatasetID, SubjectID: ids.SubjectID}] = struct{}{}
		rep.Datasets, rep.Subjects = len(datasets), len(subjects)

		o.metrics.RecordFile(OutcomeProcessed, len(windows), time.Since(fileStart))
		o.logger.LogFileProcessed(ctx, path, ids.DatasetID, ids.SubjectID, len(windows), time.Since(fileStart))
	}

	if err := w.Commit(); err != nil {
		return rep, fmt.Errorf("commit store: %w", err)
	}
	return rep, nil
}
