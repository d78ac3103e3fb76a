package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iss_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	feedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_feed_fetches_total",
			Help: "Total number of OEM feed refresh attempts by result.",
		},
		[]string{"result"},
	)

	feedParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_feed_parse_errors_total",
			Help: "Total number of OEM documents rejected by the parser.",
		},
	)

	datasetStateVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "iss_dataset_state_vectors",
			Help: "Number of state vectors in the current dataset.",
		},
	)

	datasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "iss_dataset_age_seconds",
			Help: "Seconds since the current dataset was loaded.",
		},
	)

	snapshotLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_snapshot_loads_total",
			Help: "Total number of startup snapshot load attempts by result.",
		},
		[]string{"result"},
	)

	geocodeLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_geocode_lookups_total",
			Help: "Total number of reverse geocode lookups by result.",
		},
		[]string{"result"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_stream_connections_total",
			Help: "Total number of SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "iss_streams_active",
			Help: "Number of currently open SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_stream_messages_total",
			Help: "Total number of SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_stream_bytes_total",
			Help: "Total number of SSE payload bytes sent.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_stream_errors_total",
			Help: "Total number of SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(feedFetchesTotal)
	prometheus.MustRegister(feedParseErrorsTotal)
	prometheus.MustRegister(datasetStateVectors)
	prometheus.MustRegister(datasetAgeSeconds)
	prometheus.MustRegister(snapshotLoadsTotal)
	prometheus.MustRegister(geocodeLookupsTotal)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamErrorsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncFeedFetch records a feed refresh attempt ("success" or "error").
func IncFeedFetch(result string) {
	feedFetchesTotal.WithLabelValues(result).Inc()
}

// IncParseError records a rejected OEM document.
func IncParseError() {
	feedParseErrorsTotal.Inc()
}

// SetDatasetSize records the state vector count of the current dataset.
func SetDatasetSize(n int) {
	datasetStateVectors.Set(float64(n))
}

// SetDatasetAge records the age of the current dataset in seconds.
func SetDatasetAge(seconds int64) {
	datasetAgeSeconds.Set(float64(seconds))
}

// IncSnapshotLoad records a startup snapshot load attempt
// ("hit", "stale", "miss" or "error").
func IncSnapshotLoad(result string) {
	snapshotLoadsTotal.WithLabelValues(result).Inc()
}

// IncGeocodeLookup records a reverse geocode lookup
// ("hit", "miss", "error" or "cached").
func IncGeocodeLookup(result string) {
	geocodeLookupsTotal.WithLabelValues(result).Inc()
}

// IncStreamConnections records a stream lifecycle event
// ("connect" or "disconnect").
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

// IncStreamsActive increments the active stream gauge.
func IncStreamsActive() {
	streamsActive.Inc()
}

// DecStreamsActive decrements the active stream gauge.
func DecStreamsActive() {
	streamsActive.Dec()
}

// IncStreamMessages records one sent SSE message.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// AddStreamBytes records SSE payload bytes written.
func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

// IncStreamErrors records a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE responses can flush through the recorder.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request. The
// path label uses the matched route pattern so epoch values do not blow
// up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
