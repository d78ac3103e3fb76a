package oem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultFeedURL is NASA's public OEM ephemeris for the ISS.
const DefaultFeedURL = "https://nasa-public-data.s3.amazonaws.com/iss-coords/current/ISS_OEM/ISS.OEM_J2K_EPH.xml"

const userAgent = "iss-tracker/1.0 (+https://github.com/arshansani/ISS-Tracker)"

// maxFeedBytes caps the response body. The real feed is ~2 MB; anything
// past this is a misbehaving upstream, not a bigger ephemeris.
const maxFeedBytes = 10 << 20

// Fetcher retrieves the raw OEM document from the feed URL.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given feed URL. An empty URL falls
// back to the NASA public feed.
func NewFetcher(sourceURL string, logger *slog.Logger) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultFeedURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured feed URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch performs a single HTTP GET for the OEM document. One attempt, no
// retries; the caller decides whether stale data stays live.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OEM data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("response exceeded %d byte limit from %s", maxFeedBytes, f.sourceURL)
	}

	f.logger.Debug("fetched OEM feed",
		"url", f.sourceURL,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return body, nil
}
