package oem

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the current dataset. Reads are lock-free; the refresh path
// takes the update lock so only one refresh runs at a time.
type Store struct {
	current    atomic.Pointer[DataSet]
	updateMu   sync.Mutex
	lastUpdate atomic.Int64
}

// NewStore returns an empty store. Get returns nil until the first Set.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded yet.
// The returned dataset is immutable and safe to read concurrently.
func (s *Store) Get() *DataSet {
	return s.current.Load()
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *DataSet) {
	s.current.Store(ds)
	s.lastUpdate.Store(time.Now().Unix())
}

// AgeSeconds returns seconds since the last successful Set, or -1 if no
// dataset has been stored.
func (s *Store) AgeSeconds() int64 {
	last := s.lastUpdate.Load()
	if last == 0 {
		return -1
	}
	return time.Now().Unix() - last
}

// Lock serializes dataset updates. Readers never take this lock.
func (s *Store) Lock() {
	s.updateMu.Lock()
}

// Unlock releases the update lock.
func (s *Store) Unlock() {
	s.updateMu.Unlock()
}
