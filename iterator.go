package segstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/store"
)

type batchJob struct {
	seq     int
	indices []int
	out     chan<- batchResult
}

type batchResult struct {
	batch model.Batch
	err   error
}

// Iterator yields the batches of one epoch in order.
//
//	it := loader.Epoch(ctx)
//	defer it.Close()
//	for it.Next() {
//	    b := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	loader  *Loader
	epoch   int
	ctx     context.Context
	cancel  context.CancelCauseFunc
	slots   <-chan chan batchResult
	done    chan struct{}
	waitErr error

	reserved atomic.Int64
	lastSize int64

	cur      model.Batch
	err      error
	batches  int
	samples  int
	start    time.Time
	finished bool
}

func failedIterator(err error) *Iterator {
	return &Iterator{err: err, finished: true}
}

func newIterator(ctx context.Context, l *Loader, epoch int, readers []*store.Reader, order []int) *Iterator {
	ctx, cancel := context.WithCancelCause(ctx)
	g, gctx := errgroup.WithContext(ctx)

	inFlight := l.cfg.Workers * l.cfg.Prefetch
	slots := make(chan chan batchResult, inFlight)
	jobs := make(chan batchJob)

	it := &Iterator{
		loader: l,
		epoch:  epoch,
		ctx:    ctx,
		cancel: cancel,
		slots:  slots,
		done:   make(chan struct{}),
		start:  time.Now(),
	}

	g.Go(func() error {
		defer close(slots)
		defer close(jobs)
		return it.dispatch(gctx, order, jobs, slots)
	})
	for _, r := range readers {
		g.Go(func() error {
			return it.work(gctx, r, jobs)
		})
	}

	go func() {
		it.waitErr = g.Wait()
		close(it.done)
	}()
	return it
}

// dispatch hands out batches in order. Memory for a batch is reserved here,
// in sequence, so a later batch can never starve an earlier one.
func (it *Iterator) dispatch(ctx context.Context, order []int, jobs chan<- batchJob, slots chan<- chan batchResult) error {
	l := it.loader
	nb := l.Len()
	rc := l.opts.resources
	sampleSize := int64(l.shape.PayloadSize())

	for seq := range nb {
		lo := seq * l.cfg.BatchSize
		hi := min(lo+l.cfg.BatchSize, len(order))
		size := int64(hi-lo) * sampleSize

		if err := rc.AcquireMemory(ctx, size); err != nil {
			return err
		}
		it.reserved.Add(size)

		out := make(chan batchResult, 1)
		select {
		case jobs <- batchJob{seq: seq, indices: order[lo:hi], out: out}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case slots <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (it *Iterator) work(ctx context.Context, r *store.Reader, jobs <-chan batchJob) error {
	for job := range jobs {
		b, err := it.assemble(ctx, r, job)
		job.out <- batchResult{batch: b, err: err}
		if err != nil {
			return err
		}
	}
	return nil
}

func (it *Iterator) assemble(ctx context.Context, r *store.Reader, job batchJob) (model.Batch, error) {
	l := it.loader
	start := time.Now()
	n := len(job.indices)
	per := l.shape.Samples()

	b := model.Batch{
		Indices:    job.indices,
		DatasetIDs: make([]string, n),
		SubjectIDs: make([]string, n),
		Shape:      l.shape,
		Segments:   make([]float32, n*per),
	}
	for k, idx := range job.indices {
		if err := l.opts.resources.AcquireIO(ctx, l.shape.PayloadSize()); err != nil {
			l.opts.metrics.RecordBatch(n, time.Since(start), err)
			return model.Batch{}, err
		}
		getStart := time.Now()
		s, err := r.Get(ctx, idx)
		l.opts.metrics.RecordGet(time.Since(getStart), err)
		if err != nil {
			err = fmt.Errorf("batch %d: get row %d: %w", job.seq, idx, err)
			l.opts.metrics.RecordBatch(n, time.Since(start), err)
			return model.Batch{}, err
		}
		if s.Shape != l.shape {
			err = fmt.Errorf("batch %d: row %d has shape %s, loader has %s: %w", job.seq, idx, s.Shape, l.shape, ErrShapeMismatch)
			l.opts.metrics.RecordBatch(n, time.Since(start), err)
			return model.Batch{}, err
		}
		b.DatasetIDs[k] = s.DatasetID
		b.SubjectIDs[k] = s.SubjectID
		copy(b.Segments[k*per:], s.Data)
	}
	l.opts.metrics.RecordBatch(n, time.Since(start), nil)
	return b, nil
}

// Next advances to the next batch. It returns false at the end of the
// epoch or on error; check Err.
func (it *Iterator) Next() bool {
	if it.finished {
		return false
	}
	it.release()

	slot, ok := <-it.slots
	if !ok {
		// Dispatch ended: either every batch was delivered or it failed.
		<-it.done
		it.finish(it.stopErr())
		return false
	}

	var res batchResult
	select {
	case res = <-slot:
	case <-it.done:
		select {
		case res = <-slot:
		default:
			it.finish(it.stopErr())
			return false
		}
	}
	if res.err != nil {
		<-it.done
		it.finish(it.stopErr())
		return false
	}

	it.cur = res.batch
	it.lastSize = int64(res.batch.Len() * it.loader.shape.PayloadSize())
	it.batches++
	it.samples += res.batch.Len()
	return true
}

// Batch returns the current batch. The caller owns it.
func (it *Iterator) Batch() model.Batch { return it.cur }

// Err returns the error that ended the epoch, if any.
func (it *Iterator) Err() error { return it.err }

// Epoch returns the 1-based epoch number.
func (it *Iterator) Epoch() int { return it.epoch }

// Close stops the epoch early and waits for workers to exit. It is
// idempotent and safe after the epoch ended.
func (it *Iterator) Close() error {
	if it.finished {
		return nil
	}
	it.finish(nil)
	return nil
}

// stop cancels the workers with cause and waits for them to exit. The
// consumer still observes the end of the epoch through Next.
func (it *Iterator) stop(cause error) {
	it.cancel(cause)
	<-it.done
}

// stopErr reports the error that ended the workers. Cancellation by the
// loader surfaces as its cause rather than as a worker failure.
func (it *Iterator) stopErr() error {
	if it.waitErr != nil {
		if cause := context.Cause(it.ctx); errors.Is(cause, ErrClosed) {
			return ErrClosed
		}
	}
	return it.waitErr
}

func (it *Iterator) release() {
	if it.lastSize > 0 {
		it.loader.opts.resources.ReleaseMemory(it.lastSize)
		it.reserved.Add(-it.lastSize)
		it.lastSize = 0
	}
}

func (it *Iterator) finish(err error) {
	it.finished = true
	it.cur = model.Batch{}
	if it.cancel != nil {
		it.cancel(nil)
		<-it.done
	}
	if rest := it.reserved.Swap(0); rest > 0 {
		it.loader.opts.resources.ReleaseMemory(rest)
	}
	it.lastSize = 0
	it.err = err

	l := it.loader
	if l != nil {
		l.mu.Lock()
		if l.running == it {
			l.running = nil
		}
		l.mu.Unlock()
		l.opts.logger.LogEpoch(context.Background(), it.epoch, it.batches, it.samples, time.Since(it.start), err)
		l.active.Store(false)
	}
}
