package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/metrics"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim usage policy requires an identifying User-Agent.
const userAgent = "iss-tracker/1.0 (+https://github.com/arshansani/ISS-Tracker)"

// Nominatim resolves coordinates with a Nominatim reverse geocoding
// service. Wrap it in Cached so repeated positions do not hammer the
// public endpoint.
type Nominatim struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNominatim creates a resolver for the given Nominatim base URL. An
// empty URL falls back to the public OpenStreetMap instance.
func NewNominatim(baseURL string, logger *slog.Logger) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Nominatim{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Resolve implements Resolver.
func (n *Nominatim) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		metrics.IncGeocodeLookup("error")
		return "", fmt.Errorf("reverse geocoding: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.IncGeocodeLookup("error")
		return "", fmt.Errorf("unexpected status code %d from geocoder", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.IncGeocodeLookup("error")
		return "", fmt.Errorf("reading geocoder response: %w", err)
	}

	var payload struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IncGeocodeLookup("error")
		return "", fmt.Errorf("decoding geocoder response: %w", err)
	}

	// Nominatim reports open-ocean positions as an error payload with no
	// display name. That is a valid answer, not a failure.
	if payload.DisplayName == "" {
		metrics.IncGeocodeLookup("miss")
		n.logger.Debug("no place name for position", "lat", lat, "lon", lon)
		return "", nil
	}

	metrics.IncGeocodeLookup("hit")
	return payload.DisplayName, nil
}
