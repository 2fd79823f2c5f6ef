package segstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/store"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// BatchSize is the number of samples per batch.
	BatchSize int `yaml:"batch_size"`
	// Shuffle draws a fresh permutation of the rows every epoch.
	Shuffle bool `yaml:"shuffle"`
	// Workers is the number of goroutines, each with its own reader.
	Workers int `yaml:"workers"`
	// DropLast omits a final batch smaller than BatchSize.
	DropLast bool `yaml:"drop_last"`
	// Prefetch is the number of batches buffered per worker.
	Prefetch int `yaml:"prefetch"`
	// Seed fixes the shuffle order. Zero seeds from the clock.
	Seed uint64 `yaml:"seed"`
}

// DefaultLoaderConfig returns the settings of the reference training loop.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		BatchSize: 32,
		Shuffle:   true,
		Workers:   4,
		DropLast:  true,
		Prefetch:  2,
	}
}

// Validate checks the config.
func (c LoaderConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Prefetch < 1 {
		return fmt.Errorf("%w: prefetch must be at least 1, got %d", ErrInvalidConfig, c.Prefetch)
	}
	return nil
}

// Loader produces batches of stored segments for training loops.
//
// Every worker reads through its own store.Reader, opened on first use and
// kept until Close. Only one epoch runs at a time.
type Loader struct {
	open  store.Opener
	cfg   LoaderConfig
	opts  options
	count int
	shape model.Shape
	order []int

	mu      sync.Mutex
	rng     *rand.Rand
	readers []*store.Reader
	epochs  int
	running *Iterator

	active atomic.Bool
	closed atomic.Bool
}

// NewLoader opens one reader to learn the store's row count and shape.
// That reader becomes the first worker's.
func NewLoader(ctx context.Context, open store.Opener, cfg LoaderConfig, opts ...Option) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	first, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open reader: %w", err)
	}

	l := &Loader{
		open:    open,
		cfg:     cfg,
		opts:    o,
		count:   first.Count(),
		shape:   first.Shape(),
		readers: []*store.Reader{first},
	}

	if o.subset != nil {
		if !o.subset.IsEmpty() && int(o.subset.Maximum()) >= l.count {
			_ = first.Close()
			return nil, fmt.Errorf("%w: subset index %d outside [0, %d)", ErrNotFound, o.subset.Maximum(), l.count)
		}
		l.order = make([]int, 0, o.subset.GetCardinality())
		for it := o.subset.Iterator(); it.HasNext(); {
			l.order = append(l.order, int(it.Next()))
		}
	} else {
		l.order = make([]int, l.count)
		for i := range l.order {
			l.order[i] = i
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return l, nil
}

// Size returns the number of samples an epoch draws from.
func (l *Loader) Size() int { return len(l.order) }

// Shape returns the C × L shape of every sample.
func (l *Loader) Shape() model.Shape { return l.shape }

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	n, b := len(l.order), l.cfg.BatchSize
	if l.cfg.DropLast {
		return n / b
	}
	return (n + b - 1) / b
}

func (l *Loader) permutation() []int {
	order := slices.Clone(l.order)
	if l.cfg.Shuffle {
		l.mu.Lock()
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		l.mu.Unlock()
	}
	return order
}

// workerReaders opens readers up to cfg.Workers and checks they all see the
// generation the loader was created on.
// The caller holds l.mu.
func (l *Loader) workerReaders(ctx context.Context) ([]*store.Reader, error) {
	for len(l.readers) < l.cfg.Workers {
		r, err := l.open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open reader: %w", err)
		}
		if r.Count() != l.count || r.Shape() != l.shape {
			_ = r.Close()
			return nil, fmt.Errorf("%w: reader sees %d rows of %s, loader has %d rows of %s",
				ErrGenerationChanged, r.Count(), r.Shape(), l.count, l.shape)
		}
		l.readers = append(l.readers, r)
	}
	return slices.Clone(l.readers), nil
}

// Epoch starts one pass over the rows. The caller must Close the iterator,
// or drain it, before starting the next epoch.
func (l *Loader) Epoch(ctx context.Context) *Iterator {
	if l.closed.Load() {
		return failedIterator(ErrClosed)
	}
	if !l.active.CompareAndSwap(false, true) {
		return failedIterator(ErrEpochActive)
	}

	order := l.permutation()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		l.active.Store(false)
		return failedIterator(ErrClosed)
	}
	readers, err := l.workerReaders(ctx)
	if err != nil {
		l.active.Store(false)
		return failedIterator(err)
	}

	l.epochs++
	l.running = newIterator(ctx, l, l.epochs, readers, order)
	return l.running
}

// Batches returns an iterator over one epoch. A retrieval error is yielded
// once as the final element.
func (l *Loader) Batches(ctx context.Context) iter.Seq2[model.Batch, error] {
	return func(yield func(model.Batch, error) bool) {
		it := l.Epoch(ctx)
		defer it.Close()

		for it.Next() {
			if !yield(it.Batch(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(model.Batch{}, err)
		}
	}
}

// Close stops a running epoch, waits for its workers and releases all
// readers. The epoch's iterator then ends with ErrClosed. Close is idempotent.
func (l *Loader) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if running != nil {
		running.stop(ErrClosed)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, r := range l.readers {
		errs = append(errs, r.Close())
	}
	l.readers = nil
	return errors.Join(errs...)
}
