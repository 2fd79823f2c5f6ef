package store

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// SubjectKey identifies a subject within its dataset. Subject ids are only
// unique per dataset.
type SubjectKey struct {
	DatasetID string
	SubjectID string
}

// String returns "dataset/subject".
func (k SubjectKey) String() string {
	return k.DatasetID + "/" + k.SubjectID
}

// Index maps datasets and subjects to the 0-based row indices they own.
// Bitmaps returned by its methods are copies and may be modified.
type Index struct {
	all      *roaring.Bitmap
	datasets map[string]*roaring.Bitmap
	subjects map[SubjectKey]*roaring.Bitmap
}

type indexRecord struct {
	ID        int64  `db:"id"`
	DatasetID string `db:"dataset_id"`
	SubjectID string `db:"subject_id"`
}

// Index scans the table and builds bitmaps of row indices per dataset and
// per subject.
func (r *Reader) Index(ctx context.Context) (*Index, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := r.db.QueryxContext(ctx, indexQuery(r.opts.Table))
	if err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	defer rows.Close()

	idx := &Index{
		all:      roaring.New(),
		datasets: make(map[string]*roaring.Bitmap),
		subjects: make(map[SubjectKey]*roaring.Bitmap),
	}
	for rows.Next() {
		var rec indexRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("index store: %w", err)
		}
		i := uint32(rec.ID - 1)

		idx.all.Add(i)
		ds, ok := idx.datasets[rec.DatasetID]
		if !ok {
			ds = roaring.New()
			idx.datasets[rec.DatasetID] = ds
		}
		ds.Add(i)

		key := SubjectKey{DatasetID: rec.DatasetID, SubjectID: rec.SubjectID}
		sub, ok := idx.subjects[key]
		if !ok {
			sub = roaring.New()
			idx.subjects[key] = sub
		}
		sub.Add(i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	return idx, nil
}

// All returns every row index.
func (x *Index) All() *roaring.Bitmap {
	return x.all.Clone()
}

// Dataset returns the row indices of a dataset (empty if unknown).
func (x *Index) Dataset(datasetID string) *roaring.Bitmap {
	if b, ok := x.datasets[datasetID]; ok {
		return b.Clone()
	}
	return roaring.New()
}

// Subject returns the row indices of a subject (empty if unknown).
func (x *Index) Subject(key SubjectKey) *roaring.Bitmap {
	if b, ok := x.subjects[key]; ok {
		return b.Clone()
	}
	return roaring.New()
}

// Datasets returns the dataset ids in sorted order.
func (x *Index) Datasets() []string {
	ids := make([]string, 0, len(x.datasets))
	for id := range x.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subjects returns the subject keys sorted by dataset, then subject.
func (x *Index) Subjects() []SubjectKey {
	keys := make([]SubjectKey, 0, len(x.subjects))
	for k := range x.subjects {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DatasetID != keys[j].DatasetID {
			return keys[i].DatasetID < keys[j].DatasetID
		}
		return keys[i].SubjectID < keys[j].SubjectID
	})
	return keys
}

// Union returns the row indices of all listed datasets.
func (x *Index) Union(datasetIDs ...string) *roaring.Bitmap {
	out := roaring.New()
	for _, id := range datasetIDs {
		if b, ok := x.datasets[id]; ok {
			out.Or(b)
		}
	}
	return out
}

// SplitSubjects partitions rows by subject so that no subject appears on both
// sides. Roughly fraction of the subjects (at least one when fraction > 0 and
// there are two or more subjects) go to holdout. The assignment depends only
// on seed and the set of subjects.
func (x *Index) SplitSubjects(fraction float64, seed uint64) (train, holdout *roaring.Bitmap) {
	train, holdout = roaring.New(), roaring.New()

	keys := x.Subjects()
	n := int(float64(len(keys))*fraction + 0.5)
	if fraction > 0 && n == 0 && len(keys) > 1 {
		n = 1
	}
	n = min(n, len(keys))

	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for i, k := range keys {
		if i < n {
			holdout.Or(x.subjects[k])
		} else {
			train.Or(x.subjects[k])
		}
	}
	return train, holdout
}

// Iter yields row indices of b in ascending order.
func Iter(b *roaring.Bitmap) iter.Seq[int] {
	return func(yield func(int) bool) {
		it := b.Iterator()
		for it.HasNext() {
			if !yield(int(it.Next())) {
				return
			}
		}
	}
}
