package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/model"
)

// Writer builds one store generation. It is not safe for concurrent use.
//
// Every Writer must end with exactly one call to Commit or Abort; both
// release the writer lock and the temp file.
type Writer struct {
	path  string
	tmp   string
	shape model.Shape
	opts  Options

	lock   *fs.Lock
	db     *sqlx.DB
	tx     *sqlx.Tx
	insert *sqlx.Stmt

	buf  []byte
	rows int64
	done bool
}

// Create starts a new generation for the store at path. Every row appended
// must have the given shape. The previous generation, if any, stays readable
// until Commit.
//
// Create fails with fs.ErrLocked if another writer holds the store.
func Create(ctx context.Context, path string, shape model.Shape, optFns ...func(*Options)) (*Writer, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("%w: invalid shape %s", ErrShapeMismatch, shape)
	}
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	lock, err := fs.TryLock(abs + ".lock")
	if err != nil {
		return nil, err
	}

	w := &Writer{
		path:  abs,
		tmp:   fs.TempPath(abs),
		shape: shape,
		opts:  opts,
		lock:  lock,
		buf:   make([]byte, 0, shape.PayloadSize()),
	}
	if err := w.begin(ctx); err != nil {
		w.cleanup()
		return nil, err
	}

	opts.Logger.DebugContext(ctx, "store generation started", "path", abs, "tmp", w.tmp, "shape", shape.String())
	return w, nil
}

func (w *Writer) begin(ctx context.Context) error {
	db, err := sqlx.Open(driverName, writerDSN(w.tmp, w.opts))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	w.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin generation: %w", err)
	}
	w.tx = tx

	for i, stmt := range schemaStatements(w.opts.Table) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}

	insert, err := tx.PreparexContext(ctx, insertQuery(w.opts.Table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	w.insert = insert
	return nil
}

// Shape returns the shape every row must have.
func (w *Writer) Shape() model.Shape { return w.shape }

// Rows returns the number of rows appended so far.
func (w *Writer) Rows() int64 { return w.rows }

// Append inserts one row and returns its id. Ids are assigned 1, 2, 3, ...
// in append order.
func (w *Writer) Append(ctx context.Context, row model.Row) (int64, error) {
	if w.done {
		return 0, ErrClosed
	}
	win := row.Window
	if win.Shape != w.shape || len(win.Data) != w.shape.Samples() {
		return 0, fmt.Errorf("%w: row %s/%s #%d has shape %s (%d values), store has %s",
			ErrShapeMismatch, row.DatasetID, row.SubjectID, row.SegmentNumber, win.Shape, len(win.Data), w.shape)
	}

	w.buf = codec.AppendWindow(w.buf[:0], win)
	res, err := w.insert.ExecContext(ctx, row.DatasetID, row.SubjectID, row.SegmentNumber, w.shape.Channels, w.shape.Length, w.buf)
	if err != nil {
		return 0, fmt.Errorf("insert segment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert segment: %w", err)
	}
	if id != w.rows+1 {
		return 0, fmt.Errorf("insert segment: got id %d, expected %d", id, w.rows+1)
	}
	w.rows = id
	return id, nil
}

// Commit seals the generation and atomically replaces the store at path.
func (w *Writer) Commit() error {
	if w.done {
		return ErrClosed
	}
	defer w.cleanup()

	if err := w.insert.Close(); err != nil {
		return fmt.Errorf("close insert: %w", err)
	}
	w.insert = nil
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}
	w.tx = nil
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("close generation: %w", err)
	}
	w.db = nil

	if err := fs.Publish(w.tmp, w.path); err != nil {
		return err
	}

	w.opts.Logger.Debug("store generation committed", "path", w.path, "rows", w.rows)
	return nil
}

// Abort discards the generation. The previous one, if any, is untouched.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	err := w.cleanup()
	w.opts.Logger.Debug("store generation aborted", "path", w.path, "rows", w.rows)
	return err
}

func (w *Writer) cleanup() error {
	w.done = true

	var errs []error
	if w.insert != nil {
		errs = append(errs, w.insert.Close())
		w.insert = nil
	}
	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		w.tx = nil
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}
	errs = append(errs,
		fs.RemoveIfExists(w.tmp),
		fs.RemoveIfExists(w.tmp+"-journal"),
		w.lock.Unlock(),
	)
	w.lock = nil
	return errors.Join(errs...)
}
