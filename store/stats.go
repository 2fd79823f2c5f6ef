package store

import (
	"context"
	"fmt"

	"github.com/hupe1980/segstore/model"
)

// DatasetStats summarizes the rows of one dataset.
type DatasetStats struct {
	DatasetID string `db:"dataset_id" json:"dataset_id"`
	Rows      int    `db:"row_count" json:"rows"`
	Subjects  int    `db:"subjects" json:"subjects"`
}

// Stats summarizes a store generation.
type Stats struct {
	Rows     int            `json:"rows"`
	Shape    model.Shape    `json:"shape"`
	Subjects int            `json:"subjects"`
	Datasets []DatasetStats `json:"datasets"`
}

// Stats returns per-dataset row and subject counts.
func (r *Reader) Stats(ctx context.Context) (Stats, error) {
	if r.closed.Load() {
		return Stats{}, ErrClosed
	}

	var datasets []DatasetStats
	if err := r.db.SelectContext(ctx, &datasets, datasetStatsQuery(r.opts.Table)); err != nil {
		return Stats{}, fmt.Errorf("dataset stats: %w", err)
	}

	st := Stats{Rows: r.count, Shape: r.shape, Datasets: datasets}
	for _, ds := range datasets {
		st.Subjects += ds.Subjects
	}
	return st, nil
}

type verifyRecord struct {
	Rows   int   `db:"row_count"`
	MinID  int64 `db:"min_id"`
	MaxID  int64 `db:"max_id"`
	Sizes  int   `db:"sizes"`
	Shapes int   `db:"shapes"`
}

// Verify scans the whole table and checks the generation invariants: ids
// are exactly 1..Count() and every payload has the same size and shape.
func (r *Reader) Verify(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}

	var v verifyRecord
	if err := r.db.GetContext(ctx, &v, verifyQuery(r.opts.Table)); err != nil {
		return fmt.Errorf("verify store: %w", err)
	}

	if v.Rows != r.count {
		return fmt.Errorf("%w: store has %d rows, reader opened with %d", ErrCorruptPayload, v.Rows, r.count)
	}
	if v.Rows == 0 {
		return nil
	}
	if v.MinID != 1 || v.MaxID != int64(v.Rows) {
		return fmt.Errorf("%w: ids span [%d, %d] for %d rows", ErrCorruptPayload, v.MinID, v.MaxID, v.Rows)
	}
	if v.Sizes != 1 || v.Shapes != 1 {
		return fmt.Errorf("%w: %d distinct payload sizes and %d distinct shapes", ErrCorruptPayload, v.Sizes, v.Shapes)
	}
	return nil
}
