package oem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

// ErrNoSnapshot is returned by Load when the cache holds no feed copy.
var ErrNoSnapshot = errors.New("no snapshot available")

var (
	snapshotRawKey       = []byte("feed/raw")
	snapshotFetchedAtKey = []byte("feed/fetched_at")
)

// Snapshot persists the last fetched feed document so a restart can serve
// data before the upstream is reachable. The raw bytes are zstd-compressed
// on disk.
type Snapshot struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenSnapshot opens (or creates) the snapshot database in dir.
func OpenSnapshot(dir string) (*Snapshot, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Snapshot{db: db, encoder: encoder, decoder: decoder}, nil
}

// Store writes the raw feed bytes and their fetch time, replacing any
// previous snapshot.
func (s *Snapshot) Store(data []byte, fetchedAt time.Time) error {
	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/4))

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(fetchedAt.Unix()))

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotRawKey, compressed); err != nil {
			return err
		}
		return txn.Set(snapshotFetchedAtKey, ts)
	})
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	return nil
}

// Load returns the stored feed bytes and when they were fetched.
// ErrNoSnapshot means the cache is empty.
func (s *Snapshot) Load() ([]byte, time.Time, error) {
	var (
		compressed []byte
		fetchedAt  time.Time
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotRawKey)
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(snapshotFetchedAtKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("malformed fetched_at value: %d bytes", len(val))
			}
			fetchedAt = time.Unix(int64(binary.BigEndian.Uint64(val)), 0).UTC()
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, time.Time{}, ErrNoSnapshot
		}
		return nil, time.Time{}, fmt.Errorf("loading snapshot: %w", err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return data, fetchedAt, nil
}

// Close releases the database and compression resources.
func (s *Snapshot) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}
