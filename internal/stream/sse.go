// Package stream implements Server-Sent Events (SSE) streaming of the ISS
// position. Clients connect via GET /stream/position and receive the
// geodetic position derived from the ephemeris sample nearest to now.
//
// SSE message format:
//
//	data: {"type":"position","epoch":"2024-02-16T12:00:00","latitude":25.79,...}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","source":"...","fetched_at":"...","dataset_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent
// timeout. Reconnecting clients receive a fresh metadata message on each
// connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/httputil"
	"github.com/arshansani/ISS-Tracker/internal/metrics"
	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/query"
	"github.com/arshansani/ISS-Tracker/internal/transform"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 3).
	UpdateInterval     time.Duration // Default cadence of position messages (default: 5s).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Honor X-Forwarded-For / X-Real-IP for client IPs.
}

// Handler manages SSE streaming connections.
type Handler struct {
	query   *query.Service
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(svc *query.Service, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		query:   svc,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// HandlePosition serves the SSE position stream.
// GET /stream/position?interval=5
func (h *Handler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	interval := h.config.UpdateInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid interval parameter, must be 1-60"})
			return
		}
		interval = time.Duration(n) * time.Second
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_seconds", interval.Seconds(),
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send metadata message (first message on every connection).
	if ds, err := h.query.Dataset(); err == nil {
		meta := metadataMessage{
			Type:       "metadata",
			Source:     ds.Source,
			FetchedAt:  ds.FetchedAt.UTC().Format(time.RFC3339),
			DatasetAge: int(time.Since(ds.FetchedAt).Seconds()),
		}
		if err := c.sendJSON(meta); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	// Send the current position immediately so clients do not wait out
	// the first interval.
	if err := h.sendPosition(c); err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := h.sendPosition(c); err != nil {
				return
			}
			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendPosition derives the current position and writes it to the client.
// A missing dataset is not fatal to the stream; a write failure is.
func (h *Handler) sendPosition(c *client) error {
	sv, err := h.query.NearestTo(time.Now())
	if err != nil {
		metrics.IncStreamErrors("no_data")
		h.logger.Debug("stream position skipped, no dataset", "remote_ip", c.ip)
		return nil
	}

	msg := buildPositionMessage(sv)
	data, err := json.Marshal(msg)
	if err != nil {
		metrics.IncStreamErrors("marshal_error")
		h.logger.Warn("stream marshal error", "remote_ip", c.ip, "error", err)
		return nil
	}
	if err := c.sendRaw(data); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", c.ip, "error", err)
		return err
	}
	return nil
}

// buildPositionMessage derives the geodetic position and speed for a
// state vector at its own epoch.
func buildPositionMessage(sv oem.StateVector) positionMessage {
	ex, ey, ez := transform.ECIToECEFAt(sv.X, sv.Y, sv.Z, sv.Epoch)
	gp := transform.ECEFToGeodetic(ex, ey, ez)
	return positionMessage{
		Type:       "position",
		Epoch:      sv.EpochString(),
		Latitude:   gp.LatDeg,
		Longitude:  gp.LonDeg,
		AltitudeKm: gp.AltKm,
		SpeedKmS:   transform.Speed(sv.XDot, sv.YDot, sv.ZDot),
		X:          sv.X,
		Y:          sv.Y,
		Z:          sv.Z,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type       string `json:"type"`
	Source     string `json:"source"`
	FetchedAt  string `json:"fetched_at"`
	DatasetAge int    `json:"dataset_age_seconds"`
}

type positionMessage struct {
	Type       string  `json:"type"`
	Epoch      string  `json:"epoch"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AltitudeKm float64 `json:"altitude_km"`
	SpeedKmS   float64 `json:"speed_km_s"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
}
