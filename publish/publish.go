// Package publish ships sealed store generations to a blob store and
// fetches them back.
//
// A store is built locally by a single writer, then published as an
// immutable object plus manifest. Consumers fetch the current generation
// and open it read-only; nothing ever writes to a published object.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/internal/hash"
	"github.com/hupe1980/segstore/manifest"
	"github.com/hupe1980/segstore/resource"
	"github.com/hupe1980/segstore/store"
)

// ErrChecksum is returned when a fetched generation does not match its manifest.
var ErrChecksum = errors.New("publish: checksum mismatch")

// Options configures Publish and Fetch.
type Options struct {
	// Compression applied to the uploaded object. Fetch uses the manifest's.
	Compression codec.Compression

	// Channels is the corpus-wide channel count the store was written with.
	Channels int

	// Table is the segment table name. Default: store.DefaultTable.
	Table string

	// ID selects the generation to fetch. Empty means CURRENT.
	ID string

	// Resources throttles transfer bandwidth. Nil means unlimited.
	Resources *resource.Controller

	// Logger receives progress output. Default: slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) storeOptions() []func(*store.Options) {
	return []func(*store.Options){func(so *store.Options) {
		so.Table = o.Table
		so.Logger = o.Logger
	}}
}

// Publish verifies the store at storePath, uploads it and makes it the
// current generation. The store's writer lock is held throughout so a
// concurrent rebuild cannot swap the file mid-upload.
func Publish(ctx context.Context, bs blobstore.BlobStore, storePath string, opts Options) (*manifest.Manifest, error) {
	start := time.Now()
	log := opts.logger()

	lock, err := fs.TryLock(storePath + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	r, err := store.OpenReader(ctx, storePath, opts.Channels, opts.storeOptions()...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := r.Verify(ctx); err != nil {
		return nil, fmt.Errorf("verify %s: %w", storePath, err)
	}
	st, err := r.Stats(ctx)
	if err != nil {
		return nil, err
	}

	m := manifest.New(opts.Compression)
	m.Rows = st.Rows
	m.Shape = st.Shape
	m.Datasets = len(st.Datasets)
	m.Subjects = st.Subjects
	m.Table = opts.Table
	if m.Table == "" {
		m.Table = store.DefaultTable
	}

	if err := upload(ctx, bs, storePath, m, opts.Resources); err != nil {
		return nil, err
	}
	if err := manifest.NewStore(bs).Save(ctx, m); err != nil {
		_ = bs.Delete(ctx, m.Object)
		return nil, err
	}

	log.InfoContext(ctx, "generation published",
		"id", m.ID,
		"object", m.Object,
		"rows", m.Rows,
		"raw_size", m.RawSize,
		"size", m.Size,
		"compression", m.Compression.String(),
		"duration", time.Since(start),
	)
	return m, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func upload(ctx context.Context, bs blobstore.BlobStore, path string, m *manifest.Manifest, rc *resource.Controller) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	wb, err := bs.Create(ctx, m.Object)
	if err != nil {
		return fmt.Errorf("create %s: %w", m.Object, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, blobstore.Abort(wb))
		}
	}()

	out := &countingWriter{w: resource.NewRateLimitedWriter(ctx, wb, rc)}
	cw, err := codec.NewWriter(out, m.Compression)
	if err != nil {
		return err
	}

	crc := hash.NewCRC32C()
	raw, err := io.Copy(cw, io.TeeReader(f, crc))
	if err != nil {
		return fmt.Errorf("upload %s: %w", m.Object, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", m.Object, err)
	}
	if err := wb.Close(); err != nil {
		return fmt.Errorf("finish %s: %w", m.Object, err)
	}

	m.RawSize = raw
	m.Size = out.n
	m.Checksum = crc.Sum32()
	return nil
}

// Fetch downloads a published generation to dst and verifies it. dst is
// replaced atomically; readers of the previous file are unaffected.
func Fetch(ctx context.Context, bs blobstore.BlobStore, dst string, opts Options) (*manifest.Manifest, error) {
	start := time.Now()
	log := opts.logger()

	ms := manifest.NewStore(bs)
	var (
		m   *manifest.Manifest
		err error
	)
	if opts.ID != "" {
		m, err = ms.LoadID(ctx, opts.ID)
	} else {
		m, err = ms.Load(ctx)
	}
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(dst)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	lock, err := fs.TryLock(abs + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	tmp := fs.TempPath(abs)
	if err := download(ctx, bs, tmp, m, opts.Resources); err != nil {
		return nil, errors.Join(err, fs.RemoveIfExists(tmp))
	}
	if err := fs.Publish(tmp, abs); err != nil {
		return nil, errors.Join(err, fs.RemoveIfExists(tmp))
	}

	log.InfoContext(ctx, "generation fetched",
		"id", m.ID,
		"path", abs,
		"rows", m.Rows,
		"size", m.RawSize,
		"duration", time.Since(start),
	)
	return m, nil
}

func download(ctx context.Context, bs blobstore.BlobStore, tmp string, m *manifest.Manifest, rc *resource.Controller) error {
	b, err := bs.Open(ctx, m.Object)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.Object, err)
	}
	defer b.Close()

	if b.Size() != m.Size {
		return fmt.Errorf("%w: object %s is %d bytes, manifest says %d", ErrChecksum, m.Object, b.Size(), m.Size)
	}

	body, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer body.Close()

	dec, err := codec.NewReader(resource.NewRateLimitedReader(ctx, body, rc), m.Compression)
	if err != nil {
		return err
	}
	defer dec.Close()

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	crc := hash.NewCRC32C()
	n, err := io.Copy(io.MultiWriter(f, crc), dec)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", m.Object, err)
	}

	if n != m.RawSize || crc.Sum32() != m.Checksum {
		return fmt.Errorf("%w: got %d bytes crc %08x, want %d bytes crc %08x", ErrChecksum, n, crc.Sum32(), m.RawSize, m.Checksum)
	}
	return nil
}
