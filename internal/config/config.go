// Package config resolves service settings from defaults, an optional
// YAML file, and environment variables, in that order. Later sources
// override earlier ones.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Geocoder backends.
const (
	GeocoderOff       = "off"
	GeocoderNominatim = "nominatim"
)

// Default values for the service configuration.
const (
	DefaultPort            = 8080
	DefaultRefreshInterval = time.Hour
	DefaultSnapshotDir     = "./data/snapshot"
	DefaultSnapshotTTL     = time.Hour
	DefaultStreamInterval  = 5 * time.Second
	DefaultStreamMaxPerIP  = 3
)

// Config holds every runtime setting for the tracker.
type Config struct {
	// Host is the listen host. Empty binds all interfaces.
	Host string

	// Port is the HTTP listen port (default 8080).
	Port int

	// FeedURL overrides the NASA OEM feed URL. Empty uses the default.
	FeedURL string

	// FeedFile, when set, reads the OEM document from a local file
	// instead of HTTP and watches it for changes.
	FeedFile string

	// RefreshInterval is how often the feed is refetched (default 1h).
	RefreshInterval time.Duration

	// SnapshotDir is where the raw-feed snapshot cache lives. Empty
	// disables the snapshot cache.
	SnapshotDir string

	// SnapshotTTL is how long a stored snapshot counts as fresh at
	// startup. Zero forces a startup fetch.
	SnapshotTTL time.Duration

	// Geocoder selects the reverse-geocoding backend: off | nominatim.
	Geocoder string

	// APIToken guards the admin endpoints when non-empty.
	APIToken string

	// StreamInterval is the cadence of SSE position messages.
	StreamInterval time.Duration

	// StreamMaxPerIP caps concurrent SSE connections per client IP.
	StreamMaxPerIP int

	// LogLevel is the minimum slog level emitted.
	LogLevel slog.Level
}

// Addr returns the host:port the HTTP server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// fileConfig mirrors Config with the shapes used in the YAML file.
// Durations are plain seconds.
type fileConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	FeedURL                string `yaml:"feed_url"`
	FeedFile               string `yaml:"feed_file"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	SnapshotDir            string `yaml:"snapshot_dir"`
	SnapshotTTLSeconds     *int   `yaml:"snapshot_ttl_seconds"`
	Geocoder               string `yaml:"geocoder"`
	APIToken               string `yaml:"api_token"`
	StreamIntervalSeconds  int    `yaml:"stream_interval_seconds"`
	StreamMaxPerIP         int    `yaml:"stream_max_per_ip"`
	LogLevel               string `yaml:"log_level"`
}

// Load resolves the full configuration. A YAML file pointed at by
// ISS_CONFIG is a hard error when unreadable; invalid environment values
// warn and keep the previous setting.
func Load(logger *slog.Logger) (Config, error) {
	cfg := defaults()

	if path := os.Getenv("ISS_CONFIG"); path != "" {
		if err := applyFile(&cfg, path, logger); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg, logger)

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	logger.Info("configuration loaded",
		"addr", cfg.Addr(),
		"feed_url", cfg.FeedURL,
		"feed_file", cfg.FeedFile,
		"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
		"snapshot_dir", cfg.SnapshotDir,
		"snapshot_ttl_seconds", cfg.SnapshotTTL.Seconds(),
		"geocoder", cfg.Geocoder,
		"auth_enabled", cfg.APIToken != "",
		"stream_interval_seconds", cfg.StreamInterval.Seconds(),
		"stream_max_per_ip", cfg.StreamMaxPerIP,
	)

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() Config {
	return Config{
		Port:            DefaultPort,
		RefreshInterval: DefaultRefreshInterval,
		SnapshotDir:     DefaultSnapshotDir,
		SnapshotTTL:     DefaultSnapshotTTL,
		Geocoder:        GeocoderOff,
		StreamInterval:  DefaultStreamInterval,
		StreamMaxPerIP:  DefaultStreamMaxPerIP,
		LogLevel:        slog.LevelInfo,
	}
}

func applyFile(cfg *Config, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}

	if fc.Host != "" {
		cfg.Host = fc.Host
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.FeedURL != "" {
		cfg.FeedURL = fc.FeedURL
	}
	if fc.FeedFile != "" {
		cfg.FeedFile = fc.FeedFile
	}
	if fc.RefreshIntervalSeconds > 0 {
		cfg.RefreshInterval = time.Duration(fc.RefreshIntervalSeconds) * time.Second
	}
	if fc.SnapshotDir != "" {
		cfg.SnapshotDir = fc.SnapshotDir
	}
	if fc.SnapshotTTLSeconds != nil && *fc.SnapshotTTLSeconds >= 0 {
		cfg.SnapshotTTL = time.Duration(*fc.SnapshotTTLSeconds) * time.Second
	}
	if fc.Geocoder != "" {
		cfg.Geocoder = strings.ToLower(fc.Geocoder)
	}
	if fc.APIToken != "" {
		cfg.APIToken = fc.APIToken
	}
	if fc.StreamIntervalSeconds > 0 {
		cfg.StreamInterval = time.Duration(fc.StreamIntervalSeconds) * time.Second
	}
	if fc.StreamMaxPerIP > 0 {
		cfg.StreamMaxPerIP = fc.StreamMaxPerIP
	}
	if fc.LogLevel != "" {
		level, ok := parseLogLevel(fc.LogLevel)
		if !ok {
			logger.Warn("invalid log_level in config file, using info", "value", fc.LogLevel)
		}
		cfg.LogLevel = level
	}

	logger.Info("config file applied", "path", path)
	return nil
}

func applyEnv(cfg *Config, logger *slog.Logger) {
	if v := os.Getenv("ISS_HOST"); v != "" {
		cfg.Host = v
	}

	if v := os.Getenv("ISS_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			logger.Warn("invalid ISS_PORT value, using default", "value", v, "default", cfg.Port)
		} else {
			cfg.Port = n
		}
	}

	if v := os.Getenv("ISS_OEM_URL"); v != "" {
		cfg.FeedURL = v
	}

	if v := os.Getenv("ISS_OEM_FILE"); v != "" {
		cfg.FeedFile = v
	}

	if v := os.Getenv("ISS_REFRESH_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISS_REFRESH_INTERVAL value, using default", "value", v, "default", int(cfg.RefreshInterval.Seconds()))
		} else {
			cfg.RefreshInterval = time.Duration(n) * time.Second
		}
	}

	// Setting ISS_SNAPSHOT_DIR to the empty string disables the
	// snapshot cache.
	if v, ok := os.LookupEnv("ISS_SNAPSHOT_DIR"); ok {
		cfg.SnapshotDir = v
	}

	if v := os.Getenv("ISS_SNAPSHOT_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid ISS_SNAPSHOT_TTL value, using default", "value", v, "default", int(cfg.SnapshotTTL.Seconds()))
		} else {
			cfg.SnapshotTTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ISS_GEOCODER"); v != "" {
		cfg.Geocoder = strings.ToLower(v)
	}

	if v := os.Getenv("ISS_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}

	if v := os.Getenv("ISS_STREAM_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISS_STREAM_INTERVAL value, using default", "value", v, "default", int(cfg.StreamInterval.Seconds()))
		} else {
			cfg.StreamInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ISS_STREAM_MAX_PER_IP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ISS_STREAM_MAX_PER_IP value, using default", "value", v, "default", cfg.StreamMaxPerIP)
		} else {
			cfg.StreamMaxPerIP = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, ok := parseLogLevel(v)
		if !ok {
			logger.Warn("invalid LOG_LEVEL value, using info", "value", v)
		}
		cfg.LogLevel = level
	}
}

// validate checks structural constraints on the resolved configuration.
func validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d is out of range [1, 65535]", cfg.Port)
	}
	switch cfg.Geocoder {
	case GeocoderOff, GeocoderNominatim:
	default:
		return fmt.Errorf("config: geocoder %q unknown: want off|nominatim", cfg.Geocoder)
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("config: refresh interval must be positive")
	}
	if cfg.SnapshotTTL < 0 {
		return fmt.Errorf("config: snapshot TTL must not be negative")
	}
	if cfg.StreamInterval <= 0 {
		return fmt.Errorf("config: stream interval must be positive")
	}
	if cfg.StreamMaxPerIP < 1 {
		return fmt.Errorf("config: stream max per IP must be at least 1")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
