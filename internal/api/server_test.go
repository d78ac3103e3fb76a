package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/auth"
	"github.com/arshansani/ISS-Tracker/internal/geocode"
	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/query"
	"github.com/arshansani/ISS-Tracker/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type stubResolver struct {
	name string
}

func (s stubResolver) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	return s.name, nil
}

type stubRefresher struct {
	calls atomic.Int64
}

func (s *stubRefresher) TriggerRefresh() {
	s.calls.Add(1)
}

// seedDataSet returns the three-entry dataset used across the endpoint
// tests: epochs at one-minute spacing with velocity (1,0,0) on the
// first entry.
func seedDataSet() *oem.DataSet {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &oem.DataSet{
		Source:    "test",
		FetchedAt: base,
		Header: oem.Header{
			CreationDate: "2024-001T00:00:00.000Z",
			Originator:   "NASA/JSC",
		},
		Metadata: oem.Metadata{
			ObjectName: "ISS",
			ObjectID:   "1998-067-A",
			CenterName: "EARTH",
			RefFrame:   "EME2000",
			TimeSystem: "UTC",
			StartTime:  "2024-001T00:00:00.000Z",
			StopTime:   "2024-001T00:02:00.000Z",
		},
		Comments: []string{
			"Units are in kg and km",
			"MASS=459154.20",
		},
		EpochRange: oem.EpochRange{
			Min: base,
			Max: base.Add(2 * time.Minute),
		},
		StateVectors: []oem.StateVector{
			{Epoch: base, X: 6800, XDot: 1},
			{Epoch: base.Add(time.Minute), X: 6800, Y: 10, XDot: 1, YDot: 0.1},
			{Epoch: base.Add(2 * time.Minute), X: 6800, Y: 20, XDot: 1, YDot: 0.2},
		},
	}
}

type testEnv struct {
	store   *oem.Store
	refresh *stubRefresher
	ts      *httptest.Server
}

func newTestEnv(t *testing.T, token string, resolver geocode.Resolver) *testEnv {
	t.Helper()

	store := oem.NewStore()
	svc := query.NewService(store)
	streamHandler := stream.NewHandler(svc, stream.Config{
		MaxConcurrentPerIP: 3,
		UpdateInterval:     time.Second,
		KeepaliveInterval:  30 * time.Second,
	}, testLogger())
	refresh := &stubRefresher{}

	srv := NewServer(":0", auth.Config{Token: token}, Deps{
		Logger:   testLogger(),
		Query:    svc,
		Store:    store,
		Resolver: resolver,
		Stream:   streamHandler,
		Refresh:  refresh,
	})

	ts := httptest.NewServer(srv.HTTPServer().Handler)
	t.Cleanup(ts.Close)

	return &testEnv{store: store, refresh: refresh, ts: ts}
}

func getStatus(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func getObject(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	status, body := getStatus(t, url)
	if status != wantStatus {
		t.Fatalf("GET %s: status = %d, want %d (body %s)", url, status, wantStatus, body)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		t.Fatalf("GET %s: decode object: %v (body %s)", url, err, body)
	}
	return obj
}

func getArray(t *testing.T, url string, wantStatus int) []any {
	t.Helper()
	status, body := getStatus(t, url)
	if status != wantStatus {
		t.Fatalf("GET %s: status = %d, want %d (body %s)", url, status, wantStatus, body)
	}
	var arr []any
	if err := json.Unmarshal(body, &arr); err != nil {
		t.Fatalf("GET %s: decode array: %v (body %s)", url, err, body)
	}
	return arr
}

// TestGetEpochsAll verifies the full listing with the upstream field names.
func TestGetEpochsAll(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	arr := getArray(t, env.ts.URL+"/epochs", http.StatusOK)
	if len(arr) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(arr))
	}

	first := arr[0].(map[string]any)
	if first["EPOCH"] != "2024-01-01T00:00:00" {
		t.Errorf("first EPOCH = %v, want 2024-01-01T00:00:00", first["EPOCH"])
	}
	if first["X"].(float64) != 6800 {
		t.Errorf("first X = %v, want 6800", first["X"])
	}
	if first["X_DOT"].(float64) != 1 {
		t.Errorf("first X_DOT = %v, want 1", first["X_DOT"])
	}
}

// TestGetEpochsPagination verifies limit/offset slicing semantics,
// including the empty-page edges.
func TestGetEpochsPagination(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	tests := []struct {
		name       string
		query      string
		wantLen    int
		wantEpochs []string
	}{
		{
			name:       "limit 1 offset 1 returns exactly the second entry",
			query:      "?limit=1&offset=1",
			wantLen:    1,
			wantEpochs: []string{"2024-01-01T00:01:00"},
		},
		{
			name:       "offset only returns the remainder",
			query:      "?offset=1",
			wantLen:    2,
			wantEpochs: []string{"2024-01-01T00:01:00", "2024-01-01T00:02:00"},
		},
		{
			name:    "limit 0 is a valid empty page",
			query:   "?limit=0",
			wantLen: 0,
		},
		{
			name:    "offset past the end is an empty page",
			query:   "?offset=5",
			wantLen: 0,
		},
		{
			name:       "limit larger than the rest is clamped",
			query:      "?limit=10&offset=2",
			wantLen:    1,
			wantEpochs: []string{"2024-01-01T00:02:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arr := getArray(t, env.ts.URL+"/epochs"+tt.query, http.StatusOK)
			if len(arr) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(arr), tt.wantLen)
			}
			for i, want := range tt.wantEpochs {
				got := arr[i].(map[string]any)["EPOCH"]
				if got != want {
					t.Errorf("entry %d EPOCH = %v, want %v", i, got, want)
				}
			}
		})
	}
}

// TestGetEpochsInvalidParams verifies 400 responses for bad limit/offset.
func TestGetEpochsInvalidParams(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	for _, q := range []string{"?limit=-1", "?limit=abc", "?limit=1.5", "?offset=-2", "?offset=xyz", "?limit="} {
		t.Run(q, func(t *testing.T) {
			obj := getObject(t, env.ts.URL+"/epochs"+q, http.StatusBadRequest)
			if obj["error"] == nil {
				t.Error("expected error field")
			}
		})
	}
}

// TestGetEpochByID verifies exact lookup, accepted epoch forms, absent
// epochs, and malformed epochs with the pinned error message.
func TestGetEpochByID(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	obj := getObject(t, env.ts.URL+"/epochs/2024-01-01T00:01:00", http.StatusOK)
	if obj["EPOCH"] != "2024-01-01T00:01:00" {
		t.Errorf("EPOCH = %v, want 2024-01-01T00:01:00", obj["EPOCH"])
	}
	if obj["Y"].(float64) != 10 {
		t.Errorf("Y = %v, want 10", obj["Y"])
	}

	// Fractional seconds and a trailing Z canonicalize to the same epoch.
	obj = getObject(t, env.ts.URL+"/epochs/2024-01-01T00:01:00.000Z", http.StatusOK)
	if obj["EPOCH"] != "2024-01-01T00:01:00" {
		t.Errorf("EPOCH = %v, want 2024-01-01T00:01:00", obj["EPOCH"])
	}

	obj = getObject(t, env.ts.URL+"/epochs/1999-01-01T00:00:00", http.StatusNotFound)
	if obj["error"] != "Epoch not found" {
		t.Errorf("error = %v, want %q", obj["error"], "Epoch not found")
	}

	obj = getObject(t, env.ts.URL+"/epochs/not-a-date", http.StatusBadRequest)
	want := "Invalid date format. Please use the ISO format: YYYY-MM-DDTHH:MM:SS"
	if obj["error"] != want {
		t.Errorf("error = %v, want %q", obj["error"], want)
	}
}

// TestGetEpochSpeed verifies the speed derivation on the wire: velocity
// (1,0,0) yields SPEED == 1.0.
func TestGetEpochSpeed(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	obj := getObject(t, env.ts.URL+"/epochs/2024-01-01T00:00:00/speed", http.StatusOK)
	if obj["SPEED"].(float64) != 1.0 {
		t.Errorf("SPEED = %v, want 1.0", obj["SPEED"])
	}

	obj = getObject(t, env.ts.URL+"/epochs/1999-01-01T00:00:00/speed", http.StatusNotFound)
	if obj["error"] != "Epoch not found" {
		t.Errorf("error = %v, want Epoch not found", obj["error"])
	}
}

// TestGetEpochLocation verifies the derived location fields and the
// best-effort geoposition label.
func TestGetEpochLocation(t *testing.T) {
	env := newTestEnv(t, "", stubResolver{name: "Pacific Ocean"})
	env.store.Set(seedDataSet())

	obj := getObject(t, env.ts.URL+"/epochs/2024-01-01T00:00:00/location", http.StatusOK)

	// The first sample sits in the equatorial plane at radius 6800 km.
	lat := obj["LATITUDE"].(float64)
	if math.Abs(lat) > 1e-6 {
		t.Errorf("LATITUDE = %v, want ~0 for an equatorial position", lat)
	}
	alt := obj["ALTITUDE"].(float64)
	if math.Abs(alt-(6800-6378.137)) > 0.01 {
		t.Errorf("ALTITUDE = %v, want ~%v", alt, 6800-6378.137)
	}
	if _, ok := obj["LONGITUDE"]; !ok {
		t.Error("missing LONGITUDE")
	}
	if obj["GEOPOSITION"] != "Pacific Ocean" {
		t.Errorf("GEOPOSITION = %v, want Pacific Ocean", obj["GEOPOSITION"])
	}
}

// TestLocationPlaceholder verifies the placeholder label when no
// geocoder is configured.
func TestLocationPlaceholder(t *testing.T) {
	env := newTestEnv(t, "", geocode.Noop{})
	env.store.Set(seedDataSet())

	obj := getObject(t, env.ts.URL+"/epochs/2024-01-01T00:00:00/location", http.StatusOK)
	if obj["GEOPOSITION"] != "No location data" {
		t.Errorf("GEOPOSITION = %v, want No location data", obj["GEOPOSITION"])
	}
}

// TestNow verifies the merged nearest-to-now payload.
func TestNow(t *testing.T) {
	env := newTestEnv(t, "", stubResolver{name: "Pacific Ocean"})
	env.store.Set(seedDataSet())

	obj := getObject(t, env.ts.URL+"/now", http.StatusOK)

	for _, key := range []string{"EPOCH", "X", "Y", "Z", "X_DOT", "Y_DOT", "Z_DOT", "SPEED", "LATITUDE", "LONGITUDE", "ALTITUDE", "GEOPOSITION"} {
		if _, ok := obj[key]; !ok {
			t.Errorf("missing key %q in /now payload", key)
		}
	}

	// All dataset epochs are in the past, so nearest-to-now clamps to
	// the final entry.
	if obj["EPOCH"] != "2024-01-01T00:02:00" {
		t.Errorf("EPOCH = %v, want 2024-01-01T00:02:00", obj["EPOCH"])
	}
}

// TestCommentHeaderMetadata verifies the ancillary document sections.
func TestCommentHeaderMetadata(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	comments := getArray(t, env.ts.URL+"/comment", http.StatusOK)
	if len(comments) != 2 || comments[1] != "MASS=459154.20" {
		t.Errorf("unexpected comments payload: %v", comments)
	}

	header := getObject(t, env.ts.URL+"/header", http.StatusOK)
	if header["CREATION_DATE"] != "2024-001T00:00:00.000Z" {
		t.Errorf("CREATION_DATE = %v", header["CREATION_DATE"])
	}
	if header["ORIGINATOR"] != "NASA/JSC" {
		t.Errorf("ORIGINATOR = %v", header["ORIGINATOR"])
	}

	metadata := getObject(t, env.ts.URL+"/metadata", http.StatusOK)
	if metadata["OBJECT_NAME"] != "ISS" {
		t.Errorf("OBJECT_NAME = %v", metadata["OBJECT_NAME"])
	}
	if metadata["REF_FRAME"] != "EME2000" {
		t.Errorf("REF_FRAME = %v", metadata["REF_FRAME"])
	}
}

// TestNoDataUnavailable verifies every data endpoint returns 503 with
// the pinned message while the store is empty.
func TestNoDataUnavailable(t *testing.T) {
	env := newTestEnv(t, "", nil)

	paths := []string{
		"/comment",
		"/header",
		"/metadata",
		"/epochs",
		"/epochs/2024-01-01T00:00:00",
		"/epochs/2024-01-01T00:00:00/speed",
		"/epochs/2024-01-01T00:00:00/location",
		"/now",
		"/passes?lat=0&lon=0",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			obj := getObject(t, env.ts.URL+path, http.StatusServiceUnavailable)
			if obj["error"] != "ISS data not available" {
				t.Errorf("error = %v, want ISS data not available", obj["error"])
			}
		})
	}
}

// TestVersionedMount verifies the /api/v1 mount serves the same data
// routes as the root.
func TestVersionedMount(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	arr := getArray(t, env.ts.URL+"/api/v1/epochs", http.StatusOK)
	if len(arr) != 3 {
		t.Errorf("expected 3 entries via /api/v1, got %d", len(arr))
	}

	obj := getObject(t, env.ts.URL+"/api/v1/epochs/2024-01-01T00:00:00/speed", http.StatusOK)
	if obj["SPEED"].(float64) != 1.0 {
		t.Errorf("SPEED = %v, want 1.0", obj["SPEED"])
	}
}

// TestAdminRefresh verifies the refresh trigger and its auth guard.
func TestAdminRefresh(t *testing.T) {
	env := newTestEnv(t, "sekrit", nil)
	env.store.Set(seedDataSet())

	post := func(token string) int {
		req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/admin/refresh", nil)
		if err != nil {
			t.Fatal(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode
	}

	if status := post(""); status != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", status)
	}
	if status := post("wrong"); status != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", status)
	}
	if env.refresh.calls.Load() != 0 {
		t.Errorf("refresh triggered %d times before auth passed", env.refresh.calls.Load())
	}

	if status := post("sekrit"); status != http.StatusAccepted {
		t.Errorf("valid token: status = %d, want 202", status)
	}
	if env.refresh.calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", env.refresh.calls.Load())
	}

	// Data routes stay public even with a token configured.
	if status, _ := getStatus(t, env.ts.URL+"/epochs"); status != http.StatusOK {
		t.Errorf("public route status = %d, want 200", status)
	}
}

// TestPassesValidation verifies observer parameter validation.
func TestPassesValidation(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	for _, q := range []string{
		"",
		"?lat=91&lon=0",
		"?lat=0&lon=181",
		"?lat=0&lon=0&alt=99999",
		"?lat=0&lon=0&hours=100",
		"?lat=0&lon=0&min_elevation=95",
	} {
		t.Run("q="+q, func(t *testing.T) {
			obj := getObject(t, env.ts.URL+"/passes"+q, http.StatusBadRequest)
			if obj["error"] == nil {
				t.Error("expected error field")
			}
		})
	}
}

// TestPassesPrediction verifies the pass search over HTTP: an ephemeris
// pinned over the pole is visible to a polar observer and invisible to
// the equatorial-plane geometry test below it.
func TestPassesPrediction(t *testing.T) {
	env := newTestEnv(t, "", nil)

	polarRadius := 6378.137 * (1 - 1/298.257223563)
	base := time.Now().UTC().Add(time.Minute)
	vectors := make([]oem.StateVector, 5)
	for i := range vectors {
		vectors[i] = oem.StateVector{
			Epoch: base.Add(time.Duration(i) * time.Minute),
			Z:     polarRadius + 420,
		}
	}
	env.store.Set(&oem.DataSet{
		Source:       "test",
		FetchedAt:    base,
		EpochRange:   oem.EpochRange{Min: vectors[0].Epoch, Max: vectors[4].Epoch},
		StateVectors: vectors,
	})

	obj := getObject(t, env.ts.URL+"/passes?lat=90&lon=0&hours=2&min_elevation=10", http.StatusOK)
	if obj["count"].(float64) != 1 {
		t.Fatalf("count = %v, want 1", obj["count"])
	}
	passList := obj["passes"].([]any)
	pass := passList[0].(map[string]any)
	if maxEl := pass["max_elevation"].(float64); maxEl < 89 {
		t.Errorf("max_elevation = %v, want ~90", maxEl)
	}

	// The same ephemeris never rises for an equatorial observer.
	obj = getObject(t, env.ts.URL+"/passes?lat=0&lon=0&hours=2&min_elevation=10", http.StatusOK)
	if obj["count"].(float64) != 0 {
		t.Errorf("equatorial observer count = %v, want 0", obj["count"])
	}
}

// TestStreamEndpoint verifies the SSE stream is mounted and leads with
// a metadata message.
func TestStreamEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/stream/position?interval=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var firstData map[string]any
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &firstData); err != nil {
				t.Fatalf("decode SSE data line: %v", err)
			}
			break
		}
	}
	cancel()

	if firstData == nil {
		t.Fatal("no data line received before timeout")
	}
	if firstData["type"] != "metadata" {
		t.Errorf("first message type = %v, want metadata", firstData["type"])
	}
}

// TestProbesAndMetrics verifies the operational routes are mounted.
func TestProbesAndMetrics(t *testing.T) {
	env := newTestEnv(t, "", nil)

	if status, body := getStatus(t, env.ts.URL+"/healthz"); status != http.StatusOK || string(body) != "ok\n" {
		t.Errorf("healthz = %d %q", status, body)
	}

	if status, _ := getStatus(t, env.ts.URL+"/readyz"); status != http.StatusServiceUnavailable {
		t.Errorf("readyz before data: status = %d, want 503", status)
	}
	env.store.Set(seedDataSet())
	if status, _ := getStatus(t, env.ts.URL+"/readyz"); status != http.StatusOK {
		t.Errorf("readyz after data: status = %d, want 200", status)
	}

	status, body := getStatus(t, env.ts.URL+"/metrics")
	if status != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", status)
	}
	if !strings.Contains(string(body), "iss_http_requests_total") {
		t.Error("metrics output missing iss_http_requests_total")
	}
}

// TestContentType verifies JSON endpoints declare their content type.
func TestContentType(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	resp, err := http.Get(env.ts.URL + "/epochs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

// TestEpochPathForms verifies each accepted epoch form resolves, and
// rejected forms get the pinned 400 message.
func TestEpochPathForms(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.store.Set(seedDataSet())

	accepted := []string{
		"2024-01-01T00:00:00",
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:00.000",
		"2024-01-01T00:00:00.000Z",
	}
	for _, form := range accepted {
		t.Run("accepted/"+form, func(t *testing.T) {
			obj := getObject(t, fmt.Sprintf("%s/epochs/%s", env.ts.URL, form), http.StatusOK)
			if obj["EPOCH"] != "2024-01-01T00:00:00" {
				t.Errorf("EPOCH = %v", obj["EPOCH"])
			}
		})
	}

	rejected := []string{
		"2024-01-01",
		"00:00:00",
		"2024-01-01T00:00:00+05:00",
		"garbage",
	}
	for _, form := range rejected {
		t.Run("rejected/"+form, func(t *testing.T) {
			obj := getObject(t, fmt.Sprintf("%s/epochs/%s", env.ts.URL, form), http.StatusBadRequest)
			if obj["error"] != "Invalid date format. Please use the ISO format: YYYY-MM-DDTHH:MM:SS" {
				t.Errorf("error = %v", obj["error"])
			}
		})
	}
}
