package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arshansani/ISS-Tracker/internal/geocode"
	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/passes"
	"github.com/arshansani/ISS-Tracker/internal/query"
	"github.com/arshansani/ISS-Tracker/internal/transform"
)

// Wire messages pinned to the upstream service's exact phrasing.
const (
	noDataMessage        = "ISS data not available"
	epochNotFoundMessage = "Epoch not found"
	invalidEpochMessage  = "Invalid date format. Please use the ISO format: YYYY-MM-DDTHH:MM:SS"
	noLocationLabel      = "No location data"
)

// epochLayouts are the accepted epoch path forms: the normalized form
// with an optional fractional part, and the same with a trailing Z.
var epochLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z",
}

type handlers struct {
	logger   *slog.Logger
	query    *query.Service
	resolver geocode.Resolver
	refresh  RefreshTrigger
}

// stateVectorDTO mirrors the upstream OEM field names on the wire.
type stateVectorDTO struct {
	Epoch string  `json:"EPOCH"`
	X     float64 `json:"X"`
	Y     float64 `json:"Y"`
	Z     float64 `json:"Z"`
	XDot  float64 `json:"X_DOT"`
	YDot  float64 `json:"Y_DOT"`
	ZDot  float64 `json:"Z_DOT"`
}

func toStateVectorDTO(sv oem.StateVector) stateVectorDTO {
	return stateVectorDTO{
		Epoch: sv.EpochString(),
		X:     sv.X,
		Y:     sv.Y,
		Z:     sv.Z,
		XDot:  sv.XDot,
		YDot:  sv.YDot,
		ZDot:  sv.ZDot,
	}
}

type headerDTO struct {
	CreationDate string `json:"CREATION_DATE"`
	Originator   string `json:"ORIGINATOR"`
}

type metadataDTO struct {
	ObjectName string `json:"OBJECT_NAME"`
	ObjectID   string `json:"OBJECT_ID"`
	CenterName string `json:"CENTER_NAME"`
	RefFrame   string `json:"REF_FRAME"`
	TimeSystem string `json:"TIME_SYSTEM"`
	StartTime  string `json:"START_TIME"`
	StopTime   string `json:"STOP_TIME"`
}

type speedDTO struct {
	Speed float64 `json:"SPEED"`
}

type locationDTO struct {
	Latitude    float64 `json:"LATITUDE"`
	Longitude   float64 `json:"LONGITUDE"`
	Altitude    float64 `json:"ALTITUDE"`
	Geoposition string  `json:"GEOPOSITION"`
}

// nowDTO is the flat merge of the nearest state vector, its speed, and
// its derived location.
type nowDTO struct {
	stateVectorDTO
	Speed float64 `json:"SPEED"`
	locationDTO
}

type passesObserverDTO struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	AltitudeM    float64 `json:"altitude_m"`
	MinElevation float64 `json:"min_elevation"`
}

type passesResponse struct {
	Observer     passesObserverDTO  `json:"observer"`
	HorizonHours float64            `json:"horizon_hours"`
	Count        int                `json:"count"`
	Passes       []passes.PassEvent `json:"passes"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseEpochParam canonicalizes an epoch path value to the stored
// second-precision UTC form.
func parseEpochParam(raw string) (time.Time, bool) {
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}

func (h *handlers) comment(w http.ResponseWriter, r *http.Request) {
	ds, err := h.query.Dataset()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return
	}
	comments := ds.Comments
	if comments == nil {
		comments = []string{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *handlers) header(w http.ResponseWriter, r *http.Request) {
	ds, err := h.query.Dataset()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return
	}
	writeJSON(w, http.StatusOK, headerDTO{
		CreationDate: ds.Header.CreationDate,
		Originator:   ds.Header.Originator,
	})
}

func (h *handlers) metadata(w http.ResponseWriter, r *http.Request) {
	ds, err := h.query.Dataset()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return
	}
	writeJSON(w, http.StatusOK, metadataDTO{
		ObjectName: ds.Metadata.ObjectName,
		ObjectID:   ds.Metadata.ObjectID,
		CenterName: ds.Metadata.CenterName,
		RefFrame:   ds.Metadata.RefFrame,
		TimeSystem: ds.Metadata.TimeSystem,
		StartTime:  ds.Metadata.StartTime,
		StopTime:   ds.Metadata.StopTime,
	})
}

// epochs serves the full listing, or a page when limit/offset appear.
// limit=0 is a valid empty page; an offset past the end is an empty
// page, not an error.
func (h *handlers) epochs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset := 0
	if q.Has("offset") {
		n, err := strconv.Atoi(q.Get("offset"))
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter, must be a non-negative integer")
			return
		}
		offset = n
	}

	limit := -1
	if q.Has("limit") {
		n, err := strconv.Atoi(q.Get("limit"))
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter, must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		vectors []oem.StateVector
		err     error
	)
	if q.Has("limit") || q.Has("offset") {
		vectors, err = h.query.Page(offset, limit)
	} else {
		vectors, err = h.query.All()
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return
	}

	dtos := make([]stateVectorDTO, len(vectors))
	for i, sv := range vectors {
		dtos[i] = toStateVectorDTO(sv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// lookupEpoch parses the path value and resolves it against the dataset,
// writing the error response itself when the lookup fails.
func (h *handlers) lookupEpoch(w http.ResponseWriter, r *http.Request) (oem.StateVector, bool) {
	raw := chi.URLParam(r, "epoch")
	t, ok := parseEpochParam(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, invalidEpochMessage)
		return oem.StateVector{}, false
	}

	sv, err := h.query.ByEpoch(t)
	switch {
	case errors.Is(err, query.ErrNoData):
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return oem.StateVector{}, false
	case errors.Is(err, query.ErrEpochNotFound):
		writeError(w, http.StatusNotFound, epochNotFoundMessage)
		return oem.StateVector{}, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return oem.StateVector{}, false
	}
	return sv, true
}

func (h *handlers) epochByID(w http.ResponseWriter, r *http.Request) {
	sv, ok := h.lookupEpoch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStateVectorDTO(sv))
}

func (h *handlers) epochSpeed(w http.ResponseWriter, r *http.Request) {
	sv, ok := h.lookupEpoch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, speedDTO{
		Speed: transform.Speed(sv.XDot, sv.YDot, sv.ZDot),
	})
}

func (h *handlers) epochLocation(w http.ResponseWriter, r *http.Request) {
	sv, ok := h.lookupEpoch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.locate(r.Context(), sv))
}

func (h *handlers) now(w http.ResponseWriter, r *http.Request) {
	sv, err := h.query.NearestTo(time.Now())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return
	}

	writeJSON(w, http.StatusOK, nowDTO{
		stateVectorDTO: toStateVectorDTO(sv),
		Speed:          transform.Speed(sv.XDot, sv.YDot, sv.ZDot),
		locationDTO:    h.locate(r.Context(), sv),
	})
}

// locate derives the geodetic point for a state vector at its epoch and
// resolves a best-effort place label. Geocoder failures never fail the
// request.
func (h *handlers) locate(ctx context.Context, sv oem.StateVector) locationDTO {
	ex, ey, ez := transform.ECIToECEFAt(sv.X, sv.Y, sv.Z, sv.Epoch)
	gp := transform.ECEFToGeodetic(ex, ey, ez)

	label := noLocationLabel
	if h.resolver != nil {
		name, err := h.resolver.Resolve(ctx, gp.LatDeg, gp.LonDeg)
		if err != nil {
			h.logger.Debug("geocode lookup failed", "error", err)
		} else if name != "" {
			label = name
		}
	}

	return locationDTO{
		Latitude:    gp.LatDeg,
		Longitude:   gp.LonDeg,
		Altitude:    gp.AltKm,
		Geoposition: label,
	}
}

// passes serves upcoming visibility passes for an observer.
// GET /passes?lat=&lon=&alt=&hours=&min_elevation=
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "invalid lat parameter, must be -90 to 90")
		return
	}

	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "invalid lon parameter, must be -180 to 180")
		return
	}

	alt := 0.0
	if v := q.Get("alt"); v != "" {
		alt, err = strconv.ParseFloat(v, 64)
		if err != nil || alt < -500 || alt > 9000 {
			writeError(w, http.StatusBadRequest, "invalid alt parameter, must be -500 to 9000 meters")
			return
		}
	}

	hours := 24.0
	if v := q.Get("hours"); v != "" {
		hours, err = strconv.ParseFloat(v, 64)
		if err != nil || hours < 1 || hours > 72 {
			writeError(w, http.StatusBadRequest, "invalid hours parameter, must be 1-72")
			return
		}
	}

	minElevation := 10.0
	if v := q.Get("min_elevation"); v != "" {
		minElevation, err = strconv.ParseFloat(v, 64)
		if err != nil || minElevation < 0 || minElevation > 90 {
			writeError(w, http.StatusBadRequest, "invalid min_elevation parameter, must be 0-90")
			return
		}
	}

	ds, err := h.query.Dataset()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, noDataMessage)
		return
	}

	events := passes.Predict(r.Context(), passes.Request{
		Observer:     transform.NewObserverPosition(lat, lon, alt),
		Samples:      ds.StateVectors,
		Start:        time.Now(),
		HorizonHours: hours,
		MinElevation: minElevation,
	})
	if events == nil {
		events = []passes.PassEvent{}
	}

	writeJSON(w, http.StatusOK, passesResponse{
		Observer: passesObserverDTO{
			Latitude:     lat,
			Longitude:    lon,
			AltitudeM:    alt,
			MinElevation: minElevation,
		},
		HorizonHours: hours,
		Count:        len(events),
		Passes:       events,
	})
}

// adminRefresh schedules an immediate feed refetch.
// POST /admin/refresh
func (h *handlers) adminRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh unavailable")
		return
	}

	h.refresh.TriggerRefresh()
	h.logger.Info("manual refresh triggered", "remote_ip", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}
