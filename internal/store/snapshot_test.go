package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedIDs struct {
	ids []string
}

func (f *fixedIDs) Generate() string {
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("caravan "), 512)
	id, err := s.WriteSnapshot(ctx, "save", 42, data)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	snap, err := s.ReadSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, snap.Data)
	assert.Equal(t, "save", snap.Kind)
	assert.Equal(t, uint64(42), snap.Seq)
	assert.Equal(t, len(data), snap.RawSize)

	var stored int
	require.NoError(t, s.db.QueryRow(`SELECT length(data) FROM snapshots WHERE id = ?`, id).Scan(&stored))
	assert.Less(t, stored, len(data), "repetitive data should compress")
}

func TestSnapshot_Empty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.WriteSnapshot(ctx, "rejoin", 1, nil)
	require.NoError(t, err)

	snap, err := s.ReadSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, snap.Data)
}

func TestLatestSnapshot(t *testing.T) {
	s := createTestStore(t,
		WithIDGenerator(&fixedIDs{ids: []string{"a", "b", "c", "d"}}),
		WithCompressionLevel(lz4.Level5),
	)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, "save", 10, []byte("ten"))
	require.NoError(t, err)
	_, err = s.WriteSnapshot(ctx, "save", 30, []byte("thirty"))
	require.NoError(t, err)
	_, err = s.WriteSnapshot(ctx, "rejoin", 99, []byte("rejoin"))
	require.NoError(t, err)
	_, err = s.WriteSnapshot(ctx, "save", 20, []byte("twenty"))
	require.NoError(t, err)

	snap, err := s.LatestSnapshot(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, "b", snap.ID)
	assert.Equal(t, []byte("thirty"), snap.Data)

	_, err = s.LatestSnapshot(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestReadSnapshot_RejectsOtherFormatVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.WriteSnapshot(ctx, "save", 1, []byte("x"))
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE snapshots SET format_version = 999 WHERE id = ?`, id)
	require.NoError(t, err)

	_, err = s.ReadSnapshot(ctx, id)
	assert.True(t, errors.Is(err, ErrFormatVersion))
}

func TestReadSnapshot_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadSnapshot(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}
