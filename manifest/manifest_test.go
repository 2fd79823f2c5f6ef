package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/codec"
	"github.com/hupe1980/segstore/model"
)

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore())

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoGeneration)

	m := New(codec.CompressionZSTD)
	m.Rows = 42
	m.Shape = model.Shape{Channels: 19, Length: 400}
	m.Checksum = 0xdeadbeef
	assert.Equal(t, "generations/"+m.ID+"/segments.db.zst", m.Object)
	require.NoError(t, s.Save(ctx, m))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, 42, got.Rows)
	assert.Equal(t, m.Shape, got.Shape)
	assert.Equal(t, codec.CompressionZSTD, got.Compression)
	assert.Equal(t, uint32(0xdeadbeef), got.Checksum)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_CurrentMovesForward(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	s := NewStore(bs)

	first := New(codec.CompressionNone)
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, bs.Put(ctx, first.Object, []byte("db1")))

	second := New(codec.CompressionLZ4)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, s.Save(ctx, second))

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	assert.ErrorIs(t, s.Delete(ctx, second.ID), ErrCurrentGeneration)
	require.NoError(t, s.Delete(ctx, first.ID))

	_, err = s.LoadID(ctx, first.ID)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	_, err = bs.Open(ctx, first.Object)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Rejects(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	s := NewStore(bs)

	assert.Error(t, s.Save(ctx, &Manifest{ID: "not-a-uuid"}))

	m := New(codec.CompressionNone)
	require.NoError(t, s.Save(ctx, m))
	require.NoError(t, bs.Put(ctx, manifestName(m.ID), []byte(`{"version": 99}`)))
	_, err := s.Load(ctx)
	assert.ErrorContains(t, err, "unsupported manifest version")

	require.NoError(t, bs.Put(ctx, manifestName(m.ID), []byte(`{`)))
	_, err = s.Load(ctx)
	assert.Error(t, err)
}
