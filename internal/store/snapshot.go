package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"

	"github.com/roach88/lockstep/internal/codec"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot matches.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrFormatVersion is returned for a snapshot written with a codec
	// format this build cannot read.
	ErrFormatVersion = errors.New("unsupported snapshot format version")
)

// IDGenerator produces snapshot ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CompressionLevel is the lz4 level used for snapshot blobs.
type CompressionLevel = lz4.CompressionLevel

// DefaultCompression favors speed; snapshots are taken on the simulation
// goroutine's schedule.
const DefaultCompression = lz4.Fast

// Snapshot is one stored state blob. Data is decompressed.
type Snapshot struct {
	ID            string
	Kind          string
	Seq           uint64
	FormatVersion uint16
	RawSize       int
	Data          []byte
}

// WriteSnapshot compresses data and stores it as a snapshot of kind taken
// after the command with seq was applied. Returns the new snapshot's id.
func (s *Store) WriteSnapshot(ctx context.Context, kind string, seq uint64, data []byte) (string, error) {
	compressed, err := compress(data, s.level)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	id := s.ids.Generate()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, kind, seq, format_version, raw_size, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, kind, int64(seq), int(codec.FormatVersion), len(data), compressed)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return id, nil
}

// ReadSnapshot returns the snapshot with id.
func (s *Store) ReadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, seq, format_version, raw_size, data
		FROM snapshots
		WHERE id = ?
	`, id)
	return scanSnapshot(row)
}

// LatestSnapshot returns the snapshot of kind with the highest seq. Ties
// are broken by id, which for UUIDv7 is creation order.
func (s *Store) LatestSnapshot(ctx context.Context, kind string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, seq, format_version, raw_size, data
		FROM snapshots
		WHERE kind = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, kind)
	return scanSnapshot(row)
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		snap       Snapshot
		seq        int64
		version    int
		compressed []byte
	)
	err := row.Scan(&snap.ID, &snap.Kind, &seq, &version, &snap.RawSize, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if version != int(codec.FormatVersion) {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w: %d", snap.ID, ErrFormatVersion, version)
	}

	data, err := decompress(compressed, snap.RawSize)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	snap.Seq = uint64(seq)
	snap.FormatVersion = uint16(version)
	snap.Data = data
	return snap, nil
}

func compress(src []byte, level CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, fmt.Errorf("lz4 options: %w", err)
	}
	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(src []byte, rawSize int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, rawSize))
	zr := lz4.NewReader(bytes.NewReader(src))
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if buf.Len() != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", buf.Len(), rawSize)
	}
	return buf.Bytes(), nil
}
