package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/model"
)

// Reader provides random access to the rows of one store generation.
//
// A Reader owns a single connection. It must be closed by the caller and
// must not be shared between goroutines that call Get concurrently; open
// one Reader per worker instead.
type Reader struct {
	path     string
	channels int
	shape    model.Shape
	count    int
	opts     Options

	db     *sqlx.DB
	get    *sqlx.Stmt
	closed atomic.Bool
}

type segmentRecord struct {
	DatasetID     string `db:"dataset_id"`
	SubjectID     string `db:"subject_id"`
	SegmentNumber int    `db:"segment_number"`
	Channels      int    `db:"channels"`
	Segment       []byte `db:"segment"`
}

type headRecord struct {
	Channels int `db:"channels"`
	Length   int `db:"length"`
	Size     int `db:"size"`
}

// OpenReader opens the store at path for read-only access. channels is the
// corpus-wide channel count C the store was written with; it is checked
// against the first row. The row count is read once and fixed for the life
// of the Reader.
func OpenReader(ctx context.Context, path string, channels int, optFns ...func(*Options)) (*Reader, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrShapeMismatch, channels)
	}
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db, err := sqlx.Open(driverName, readerDSN(abs, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Reader{
		path:     abs,
		channels: channels,
		opts:     opts,
		db:       db,
	}
	if err := r.init(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}

	opts.Logger.DebugContext(ctx, "store reader opened", "path", abs, "rows", r.count, "shape", r.shape.String())
	return r, nil
}

func (r *Reader) init(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	if err := r.db.GetContext(ctx, &r.count, countQuery(r.opts.Table)); err != nil {
		return fmt.Errorf("count segments: %w", err)
	}

	r.shape = model.Shape{Channels: r.channels}
	if r.count > 0 {
		var head headRecord
		if err := r.db.GetContext(ctx, &head, headQuery(r.opts.Table)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: store has %d rows but no id 1", ErrCorruptPayload, r.count)
			}
			return fmt.Errorf("read first segment: %w", err)
		}
		if head.Channels != r.channels {
			return fmt.Errorf("%w: store has %d channels, configured %d", ErrShapeMismatch, head.Channels, r.channels)
		}
		length, err := codec.LengthOf(head.Size, r.channels)
		if err != nil {
			return &PayloadError{ID: 1, Size: head.Size, Channels: r.channels}
		}
		if length != head.Length {
			return &PayloadError{ID: 1, Size: head.Size, Expected: r.channels * head.Length * model.BytesPerSample, Channels: r.channels}
		}
		r.shape.Length = length
	}

	get, err := r.db.PreparexContext(ctx, getQuery(r.opts.Table))
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}
	r.get = get
	return nil
}

// Path returns the absolute store path.
func (r *Reader) Path() string { return r.path }

// Count returns the number of rows, fixed at open time.
func (r *Reader) Count() int { return r.count }

// Shape returns the C × L shape of every segment. Length is zero for an
// empty store.
func (r *Reader) Shape() model.Shape { return r.shape }

// Get returns the row at 0-based index i (row id i+1). The returned data is
// an independent copy.
func (r *Reader) Get(ctx context.Context, i int) (model.Sample, error) {
	if r.closed.Load() {
		return model.Sample{}, ErrClosed
	}
	if i < 0 || i >= r.count {
		return model.Sample{}, fmt.Errorf("%w: index %d outside [0, %d)", ErrNotFound, i, r.count)
	}

	id := int64(i) + 1
	var rec segmentRecord
	if err := r.get.GetContext(ctx, &rec, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Sample{}, fmt.Errorf("%w: row id %d", ErrNotFound, id)
		}
		return model.Sample{}, fmt.Errorf("get segment %d: %w", id, err)
	}

	if rec.Channels != r.channels {
		return model.Sample{}, fmt.Errorf("%w: row %d has %d channels, configured %d", ErrShapeMismatch, id, rec.Channels, r.channels)
	}
	if len(rec.Segment)%(r.channels*model.BytesPerSample) != 0 || len(rec.Segment) == 0 {
		return model.Sample{}, &PayloadError{ID: id, Size: len(rec.Segment), Channels: r.channels}
	}
	if len(rec.Segment) != r.shape.PayloadSize() {
		return model.Sample{}, &PayloadError{ID: id, Size: len(rec.Segment), Expected: r.shape.PayloadSize(), Channels: r.channels}
	}

	win, err := codec.DecodeWindow(rec.Segment, r.channels)
	if err != nil {
		return model.Sample{}, err
	}

	return model.Sample{
		Index:     i,
		DatasetID: rec.DatasetID,
		SubjectID: rec.SubjectID,
		Shape:     win.Shape,
		Data:      win.Data,
	}, nil
}

// Close releases the connection. It is idempotent.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	var errs []error
	if r.get != nil {
		errs = append(errs, r.get.Close())
	}
	errs = append(errs, r.db.Close())
	return errors.Join(errs...)
}

// Opener opens a fresh Reader. Each call must yield an independent connection.
type Opener func(ctx context.Context) (*Reader, error)

// NewOpener returns an Opener for the store at path.
func NewOpener(path string, channels int, optFns ...func(*Options)) Opener {
	return func(ctx context.Context) (*Reader, error) {
		return OpenReader(ctx, path, channels, optFns...)
	}
}
