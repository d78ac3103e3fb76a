package query

import (
	"errors"
	"testing"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/oem"
)

func testDataSet(n int) *oem.DataSet {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	vectors := make([]oem.StateVector, n)
	for i := range vectors {
		vectors[i] = oem.StateVector{
			Epoch: base.Add(time.Duration(i) * time.Minute),
			X:     6800 + float64(i),
			XDot:  1.0,
		}
	}
	return &oem.DataSet{
		Source:       "test",
		FetchedAt:    base,
		EpochRange:   oem.EpochRange{Min: vectors[0].Epoch, Max: vectors[n-1].Epoch},
		StateVectors: vectors,
	}
}

func newTestService(n int) *Service {
	store := oem.NewStore()
	store.Set(testDataSet(n))
	return NewService(store)
}

// TestServiceNoData verifies every method reports ErrNoData before the
// first dataset load.
func TestServiceNoData(t *testing.T) {
	svc := NewService(oem.NewStore())

	if _, err := svc.All(); !errors.Is(err, ErrNoData) {
		t.Errorf("All: expected ErrNoData, got %v", err)
	}
	if _, err := svc.Page(0, 10); !errors.Is(err, ErrNoData) {
		t.Errorf("Page: expected ErrNoData, got %v", err)
	}
	if _, err := svc.ByEpoch(time.Now()); !errors.Is(err, ErrNoData) {
		t.Errorf("ByEpoch: expected ErrNoData, got %v", err)
	}
	if _, err := svc.NearestTo(time.Now()); !errors.Is(err, ErrNoData) {
		t.Errorf("NearestTo: expected ErrNoData, got %v", err)
	}
}

// TestPage verifies offset/limit windowing over the epoch-ordered list.
func TestPage(t *testing.T) {
	svc := newTestService(3)

	cases := []struct {
		name       string
		offset     int
		limit      int
		wantLen    int
		wantFirstX float64
	}{
		{"everything", 0, -1, 3, 6800},
		{"from offset to end", 1, -1, 2, 6801},
		{"second entry only", 1, 1, 1, 6801},
		{"limit past end", 1, 10, 2, 6801},
		{"limit zero is a valid empty page", 0, 0, 0, 0},
		{"offset at end", 3, 5, 0, 0},
		{"offset past end", 10, 5, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := svc.Page(tc.offset, tc.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(page) != tc.wantLen {
				t.Fatalf("length: got %d, want %d", len(page), tc.wantLen)
			}
			if tc.wantLen > 0 && page[0].X != tc.wantFirstX {
				t.Errorf("first X: got %v, want %v", page[0].X, tc.wantFirstX)
			}
		})
	}
}

// TestByEpoch verifies exact epoch lookup.
func TestByEpoch(t *testing.T) {
	svc := newTestService(3)

	target := time.Date(2024, time.January, 1, 0, 1, 0, 0, time.UTC)
	sv, err := svc.ByEpoch(target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sv.X != 6801 {
		t.Errorf("expected second vector (X=6801), got X=%v", sv.X)
	}

	missing := time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.ByEpoch(missing); !errors.Is(err, ErrEpochNotFound) {
		t.Errorf("expected ErrEpochNotFound, got %v", err)
	}

	// Thirty seconds off an existing epoch is not a match.
	near := time.Date(2024, time.January, 1, 0, 1, 30, 0, time.UTC)
	if _, err := svc.ByEpoch(near); !errors.Is(err, ErrEpochNotFound) {
		t.Errorf("expected ErrEpochNotFound for near miss, got %v", err)
	}
}

// TestNearestTo verifies nearest-epoch selection, including the
// exact-midpoint tie going to the earlier epoch.
func TestNearestTo(t *testing.T) {
	svc := newTestService(3)
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		t     time.Time
		wantX float64
	}{
		{"before range clamps to first", base.Add(-time.Hour), 6800},
		{"after range clamps to last", base.Add(time.Hour), 6802},
		{"exact epoch", base.Add(time.Minute), 6801},
		{"closer to earlier", base.Add(70 * time.Second), 6801},
		{"closer to later", base.Add(110 * time.Second), 6802},
		{"midpoint tie goes earlier", base.Add(90 * time.Second), 6801},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sv, err := svc.NearestTo(tc.t)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sv.X != tc.wantX {
				t.Errorf("got X=%v, want %v", sv.X, tc.wantX)
			}
		})
	}
}
