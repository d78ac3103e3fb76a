// Package query answers read-only questions about the current ephemeris
// dataset: pagination, exact epoch lookup, and nearest-epoch search.
package query

import (
	"errors"
	"sort"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/oem"
)

// ErrNoData means no dataset has been loaded yet.
var ErrNoData = errors.New("no dataset loaded")

// ErrEpochNotFound means the dataset holds no state vector at the
// requested epoch.
var ErrEpochNotFound = errors.New("epoch not found")

// Service reads the current dataset from the store. All methods are safe
// for concurrent use; each call sees one consistent dataset.
type Service struct {
	store *oem.Store
}

// NewService creates a Service backed by the given store.
func NewService(store *oem.Store) *Service {
	return &Service{store: store}
}

// Dataset returns the current dataset, or ErrNoData before the first load.
func (s *Service) Dataset() (*oem.DataSet, error) {
	ds := s.store.Get()
	if ds == nil {
		return nil, ErrNoData
	}
	return ds, nil
}

// All returns every state vector in epoch order.
func (s *Service) All() ([]oem.StateVector, error) {
	ds, err := s.Dataset()
	if err != nil {
		return nil, err
	}
	return ds.StateVectors, nil
}

// Page returns state vectors [offset, offset+limit). A negative limit
// means no limit: everything from offset on. limit zero is a valid empty
// page, and an offset at or past the end yields an empty page rather than
// an error.
func (s *Service) Page(offset, limit int) ([]oem.StateVector, error) {
	ds, err := s.Dataset()
	if err != nil {
		return nil, err
	}

	vectors := ds.StateVectors
	if offset >= len(vectors) || limit == 0 {
		return []oem.StateVector{}, nil
	}

	end := len(vectors)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return vectors[offset:end], nil
}

// ByEpoch returns the state vector whose epoch exactly equals t, or
// ErrEpochNotFound.
func (s *Service) ByEpoch(t time.Time) (oem.StateVector, error) {
	ds, err := s.Dataset()
	if err != nil {
		return oem.StateVector{}, err
	}

	vectors := ds.StateVectors
	i := sort.Search(len(vectors), func(i int) bool {
		return !vectors[i].Epoch.Before(t)
	})
	if i < len(vectors) && vectors[i].Epoch.Equal(t) {
		return vectors[i], nil
	}
	return oem.StateVector{}, ErrEpochNotFound
}

// NearestTo returns the state vector whose epoch is closest to t. When t
// falls exactly between two epochs the earlier one wins.
func (s *Service) NearestTo(t time.Time) (oem.StateVector, error) {
	ds, err := s.Dataset()
	if err != nil {
		return oem.StateVector{}, err
	}

	vectors := ds.StateVectors
	i := sort.Search(len(vectors), func(i int) bool {
		return !vectors[i].Epoch.Before(t)
	})
	switch {
	case i == 0:
		return vectors[0], nil
	case i == len(vectors):
		return vectors[len(vectors)-1], nil
	}

	before := vectors[i-1]
	after := vectors[i]
	if after.Epoch.Sub(t) < t.Sub(before.Epoch) {
		return after, nil
	}
	return before, nil
}
