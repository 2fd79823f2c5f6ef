package segstore

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segstore/resource"
	"github.com/hupe1980/segstore/store"
)

type options struct {
	logger    *Logger
	metrics   MetricsCollector
	resources *resource.Controller
	storeOpts []func(*store.Options)
	subset    *roaring.Bitmap
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Option configures Populate and NewLoader.
type Option func(*options)

// WithLogger sets the logger. Default: NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. Default: NoopMetricsCollector.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithResources bounds loader memory and read bandwidth.
func WithResources(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithStoreOptions passes options to every store writer and reader.
func WithStoreOptions(optFns ...func(*store.Options)) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, optFns...)
	}
}

// WithSubset restricts loader epochs to the given 0-based row indices, e.g.
// one side of store.Index.SplitSubjects. Ignored by Populate.
func WithSubset(b *roaring.Bitmap) Option {
	return func(o *options) {
		o.subset = b
	}
}
