// Package manifest records published store generations in a blob store.
//
// Layout under the store root:
//
//	generations/<id>/segments.db[.lz4|.zst]
//	generations/<id>/MANIFEST.json
//	CURRENT                          // "<id>"
//
// A generation becomes current only after its object and manifest are
// fully written, so readers following CURRENT never see a partial upload.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/model"
)

const (
	ManifestFileName = "MANIFEST.json"
	CurrentFileName  = "CURRENT"
	GenerationsDir   = "generations"
	ObjectBaseName   = "segments.db"
	CurrentVersion   = 1
)

var (
	// ErrNoGeneration is returned when nothing has been published yet.
	ErrNoGeneration = errors.New("manifest: no published generation")
	// ErrCurrentGeneration is returned when deleting the current generation.
	ErrCurrentGeneration = errors.New("manifest: generation is current")
)

// Manifest describes one published store generation.
type Manifest struct {
	Version     int               `json:"version"`
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Object      string            `json:"object"`
	Compression codec.Compression `json:"compression"`
	// Size is the stored object size, RawSize the store file size.
	Size    int64 `json:"size"`
	RawSize int64 `json:"raw_size"`
	// Checksum is the CRC32C of the uncompressed store file.
	Checksum uint32      `json:"checksum"`
	Rows     int         `json:"rows"`
	Shape    model.Shape `json:"shape"`
	Datasets int         `json:"datasets"`
	Subjects int         `json:"subjects"`
	Table    string      `json:"table"`
}

// New returns a manifest with a fresh generation id and object name.
func New(c codec.Compression) *Manifest {
	id := uuid.NewString()
	return &Manifest{
		Version:     CurrentVersion,
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Object:      ObjectName(id, c),
		Compression: c,
	}
}

// ObjectName returns the blob name of a generation's store file.
func ObjectName(id string, c codec.Compression) string {
	return path.Join(GenerationsDir, id, ObjectBaseName+c.Ext())
}

func manifestName(id string) string {
	return path.Join(GenerationsDir, id, ManifestFileName)
}

// Store reads and writes manifests in a blob store.
type Store struct {
	bs blobstore.BlobStore
}

// NewStore creates a manifest store over bs.
func NewStore(bs blobstore.BlobStore) *Store {
	return &Store{bs: bs}
}

// Save writes m and then moves CURRENT to it.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("manifest: invalid generation id %q: %w", m.ID, err)
	}
	m.Version = CurrentVersion

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := s.bs.Put(ctx, manifestName(m.ID), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := s.bs.Put(ctx, CurrentFileName, []byte(m.ID)); err != nil {
		return fmt.Errorf("update %s: %w", CurrentFileName, err)
	}
	return nil
}

// Current returns the id CURRENT points to.
func (s *Store) Current(ctx context.Context) (string, error) {
	data, err := blobstore.ReadAll(ctx, s.bs, CurrentFileName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", ErrNoGeneration
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Load returns the current manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	id, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoadID(ctx, id)
}

// LoadID returns the manifest of generation id.
func (s *Store) LoadID(ctx context.Context, id string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, s.bs, manifestName(id))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", id, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}
	if m.ID != id {
		return nil, fmt.Errorf("manifest %s records id %s", id, m.ID)
	}
	return &m, nil
}

// List returns all published manifests, oldest first.
func (s *Store) List(ctx context.Context) ([]*Manifest, error) {
	names, err := s.bs.List(ctx, GenerationsDir+"/")
	if err != nil {
		return nil, err
	}

	var out []*Manifest
	for _, name := range names {
		if path.Base(name) != ManifestFileName {
			continue
		}
		m, err := s.LoadID(ctx, path.Base(path.Dir(name)))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Manifest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// Delete removes a non-current generation's object and manifest.
func (s *Store) Delete(ctx context.Context, id string) error {
	cur, err := s.Current(ctx)
	if err != nil && !errors.Is(err, ErrNoGeneration) {
		return err
	}
	if cur == id {
		return fmt.Errorf("%w: %s", ErrCurrentGeneration, id)
	}

	m, err := s.LoadID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.bs.Delete(ctx, m.Object); err != nil {
		return err
	}
	return s.bs.Delete(ctx, manifestName(id))
}
