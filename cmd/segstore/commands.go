package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/config"
	"github.com/hupe1980/segstore/discover"
	"github.com/hupe1980/segstore/manifest"
	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/publish"
	"github.com/hupe1980/segstore/resource"
	"github.com/hupe1980/segstore/store"
)

func cmdPopulate(ctx context.Context, a *app, args []string) error {
	fs, file, env := a.flags()
	dataDir := fs.String("data", "", "override data_dir")
	dbPath := fs.String("db", "", "override db_path")
	if err := a.parse(fs, file, env, args, func(c *config.Config) {
		if *dataDir != "" {
			c.DataDir = *dataDir
		}
		if *dbPath != "" {
			c.DBPath = *dbPath
		}
	}); err != nil {
		return err
	}
	cfg := a.cfg

	paths, err := discover.Find(ctx, cfg.DataDir, cfg.Patterns...)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "recordings discovered", "root", cfg.DataDir, "files", len(paths))

	pre := preprocess.NPY{Channels: cfg.Channels(), Resolve: cfg.NPYResolver()}
	rep, err := segstore.Populate(ctx, cfg.PopulateConfig(), paths, pre,
		segstore.WithLogger(a.logger),
		segstore.WithStoreOptions(cfg.StoreOptions),
	)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "store\t%s\n", cfg.DBPath)
	fmt.Fprintf(w, "files\t%d\n", rep.Files)
	fmt.Fprintf(w, "processed\t%d\n", rep.Processed)
	for _, reason := range rep.SkipReasons() {
		fmt.Fprintf(w, "skipped (%s)\t%d\n", reason, rep.Skipped[reason])
	}
	fmt.Fprintf(w, "rows\t%d\n", rep.Rows)
	fmt.Fprintf(w, "datasets\t%d\n", rep.Datasets)
	fmt.Fprintf(w, "subjects\t%d\n", rep.Subjects)
	fmt.Fprintf(w, "shape\t%s\n", rep.Shape)
	fmt.Fprintf(w, "duration\t%s\n", rep.Duration.Round(time.Millisecond))
	return w.Flush()
}

func cmdInspect(ctx context.Context, a *app, args []string) error {
	fs, file, env := a.flags()
	verify := fs.Bool("verify", true, "check ids and payload sizes")
	if err := a.parse(fs, file, env, args, nil); err != nil {
		return err
	}
	cfg := a.cfg

	r, err := store.OpenReader(ctx, cfg.DBPath, cfg.Channels(), cfg.StoreOptions)
	if err != nil {
		return err
	}
	defer r.Close()

	st, err := r.Stats(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "store\t%s\n", r.Path())
	fmt.Fprintf(w, "rows\t%d\n", st.Rows)
	fmt.Fprintf(w, "shape\t%s\n", st.Shape)
	fmt.Fprintf(w, "subjects\t%d\n", st.Subjects)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DATASET\tROWS\tSUBJECTS")
	for _, d := range st.Datasets {
		fmt.Fprintf(w, "%s\t%d\t%d\n", d.DatasetID, d.Rows, d.Subjects)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if *verify {
		start := time.Now()
		if err := r.Verify(ctx); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "\nverified %d rows in %s\n", st.Rows, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func cmdLoad(ctx context.Context, a *app, args []string) error {
	fs, file, env := a.flags()
	epochs := fs.Int("epochs", 1, "number of epochs")
	datasets := fs.String("datasets", "", "comma-separated dataset ids to load (default all)")
	holdout := fs.Float64("holdout", 0, "fraction of subjects held out of the loaded split")
	if err := a.parse(fs, file, env, args, nil); err != nil {
		return err
	}
	cfg := a.cfg
	if *epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", *epochs)
	}

	opener := store.NewOpener(cfg.DBPath, cfg.Channels(), cfg.StoreOptions)
	metrics := &segstore.BasicMetricsCollector{}
	opts := []segstore.Option{
		segstore.WithLogger(a.logger),
		segstore.WithMetrics(metrics),
		segstore.WithResources(resource.NewController(cfg.ResourceConfig())),
	}

	subset, err := loadSubset(ctx, opener, *datasets, *holdout, cfg.Seed)
	if err != nil {
		return err
	}
	if subset != nil {
		opts = append(opts, segstore.WithSubset(subset))
	}

	loader, err := segstore.NewLoader(ctx, opener, cfg.LoaderConfig(), opts...)
	if err != nil {
		return err
	}
	defer loader.Close()

	shape := loader.Shape()
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "EPOCH\tBATCHES\tSAMPLES\tELAPSED\tSIGNAL\tSPEEDUP\n")
	for e := 1; e <= *epochs; e++ {
		start := time.Now()
		batches, samples := 0, 0
		for b, err := range loader.Batches(ctx) {
			if err != nil {
				return err
			}
			batches++
			samples += b.Len()
		}
		elapsed := time.Since(start)

		// Seconds of signal delivered per second of wall clock.
		signal := time.Duration(float64(samples*shape.Length) / cfg.TargetRate * float64(time.Second))
		speedup := 0.0
		if elapsed > 0 {
			speedup = signal.Seconds() / elapsed.Seconds()
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%.1fx\n", e, batches, samples,
			elapsed.Round(time.Millisecond), signal.Round(time.Second), speedup)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	st := metrics.GetStats()
	fmt.Fprintf(a.stdout, "\nrows read %d, mean get %s, mean batch %s\n",
		st.GetCount, time.Duration(st.GetAvgNanos), time.Duration(st.BatchAvgNanos))
	return nil
}

// loadSubset restricts loading to the given datasets and, with a holdout
// fraction, to the training side of a subject-level split.
func loadSubset(ctx context.Context, open store.Opener, datasets string, holdout float64, seed uint64) (*roaring.Bitmap, error) {
	if datasets == "" && holdout == 0 {
		return nil, nil
	}
	if holdout < 0 || holdout >= 1 {
		return nil, fmt.Errorf("holdout %g outside [0, 1)", holdout)
	}

	r, err := open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}

	subset := idx.All()
	if datasets != "" {
		var ids []string
		for _, id := range strings.Split(datasets, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		subset = idx.Union(ids...)
	}
	if holdout > 0 {
		train, _ := idx.SplitSubjects(holdout, seed)
		subset.And(train)
	}
	return subset, nil
}

func cmdPublish(ctx context.Context, a *app, args []string) error {
	fs, file, env := a.flags()
	if err := a.parse(fs, file, env, args, nil); err != nil {
		return err
	}
	cfg := a.cfg

	bs, err := openBlobStore(ctx, cfg.Publish)
	if err != nil {
		return err
	}
	m, err := publish.Publish(ctx, bs, cfg.DBPath, publish.Options{
		Compression: cfg.Publish.Compression,
		Channels:    cfg.Channels(),
		Table:       cfg.Table,
		Resources:   resource.NewController(cfg.ResourceConfig()),
		Logger:      a.logger.Logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "published %s (%d rows, %d bytes %s)\n", m.ID, m.Rows, m.Size, m.Compression)
	return nil
}

func cmdFetch(ctx context.Context, a *app, args []string) error {
	fs, file, env := a.flags()
	id := fs.String("id", "", "generation id (default CURRENT)")
	out := fs.String("out", "", "destination store path (default db_path)")
	if err := a.parse(fs, file, env, args, nil); err != nil {
		return err
	}
	cfg := a.cfg
	dst := cfg.DBPath
	if *out != "" {
		dst = *out
	}

	bs, err := openBlobStore(ctx, cfg.Publish)
	if err != nil {
		return err
	}
	m, err := publish.Fetch(ctx, bs, dst, publish.Options{
		ID:        *id,
		Channels:  cfg.Channels(),
		Table:     cfg.Table,
		Resources: resource.NewController(cfg.ResourceConfig()),
		Logger:    a.logger.Logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "fetched %s into %s (%d rows)\n", m.ID, dst, m.Rows)
	return nil
}

func cmdGenerations(ctx context.Context, a *app, args []string) error {
	fs, file, env := a.flags()
	del := fs.String("delete", "", "delete a non-current generation")
	if err := a.parse(fs, file, env, args, nil); err != nil {
		return err
	}

	bs, err := openBlobStore(ctx, a.cfg.Publish)
	if err != nil {
		return err
	}
	ms := manifest.NewStore(bs)

	if *del != "" {
		if err := ms.Delete(ctx, *del); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted %s\n", *del)
		return nil
	}

	current, err := ms.Current(ctx)
	if err != nil && !errors.Is(err, manifest.ErrNoGeneration) {
		return err
	}
	list, err := ms.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tCREATED\tROWS\tSHAPE\tSIZE\tCOMPRESSION")
	for _, m := range list {
		mark := ""
		if m.ID == current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n", mark, m.ID, m.CreatedAt.Format(time.RFC3339), m.Rows, m.Shape, m.Size, m.Compression)
	}
	return w.Flush()
}
