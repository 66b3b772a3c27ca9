package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 90 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultEnvironment        = "local"
	defaultTemplatesDir       = "templates"
	defaultPublicDir          = "public"
	defaultLocalesDir         = "locales"
	defaultContentDir         = "content"
	defaultFallbackLang       = "en"
	defaultDatabasePath       = "instance/routeplanner.db"
	defaultGeocoderBaseURL    = "https://nominatim.openstreetmap.org"
	defaultGeocoderUserAgent  = "route-planner"
	defaultGeocoderTimeout    = 10 * time.Second
	defaultGeocoderAttempts   = 3
	defaultGeocoderRetryDelay = time.Second
	defaultGeocoderInterval   = time.Second
	defaultGeocoderCacheTTL   = 24 * time.Hour
	defaultRoutingBaseURL     = "https://api.openrouteservice.org"
	defaultRoutingProfile     = "driving-car"
	defaultRoutingTimeout     = 20 * time.Second
	defaultMapTileURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultMapAttribution     = "&copy; OpenStreetMap contributors"
	defaultMapZoom            = 10
	defaultMaxAddresses       = 25
	defaultOptimizePerMinute  = 10
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Database   DatabaseConfig
	Geocoder   GeocoderConfig
	Routing    RoutingConfig
	Map        MapConfig
	Planner    PlannerConfig
	RateLimits RateLimitConfig
	Logging    LoggingConfig
}

// ServerConfig configures HTTP server parameters and on-disk assets.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
	DevMode      bool
	TemplatesDir string
	PublicDir    string
	LocalesDir   string
	ContentDir   string
	FallbackLang string
}

// Production reports whether the server runs in the prod environment.
func (s ServerConfig) Production() bool { return s.Environment == "prod" }

// SessionConfig holds the cookie codec keys. Empty keys are only accepted outside prod.
type SessionConfig struct {
	HashKey  string
	BlockKey string
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string
}

// GeocoderConfig configures the Nominatim client.
type GeocoderConfig struct {
	BaseURL    string
	UserAgent  string
	Email      string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	Interval   time.Duration
	CacheTTL   time.Duration
}

// RoutingConfig configures the openrouteservice client. An empty APIKey selects offline estimates.
type RoutingConfig struct {
	BaseURL string
	APIKey  string
	Profile string
	Timeout time.Duration
}

// MapConfig controls the rendered Leaflet fragment.
type MapConfig struct {
	TileURL     string
	Attribution string
	Zoom        int
}

// PlannerConfig bounds the address list.
type PlannerConfig struct {
	MaxAddresses int
	PresetsFile  string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	OptimizePerMinute int
}

// LoggingConfig selects the zap level.
type LoggingConfig struct {
	Level string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables and explicit overrides, in increasing precedence.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	// Cloud Run style PORT is honoured when ROUTE_WEB_PORT is unset.
	port := stringWithDefault(lookup, "PORT", defaultPort)
	port = stringWithDefault(lookup, "ROUTE_WEB_PORT", port)

	cfg := Config{
		Server: ServerConfig{
			Port:         port,
			ReadTimeout:  durationWithDefault(lookup, "ROUTE_WEB_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "ROUTE_WEB_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "ROUTE_WEB_IDLE_TIMEOUT", defaultIdleTimeout),
			Environment:  strings.ToLower(stringWithDefault(lookup, "ROUTE_WEB_ENV", defaultEnvironment)),
			DevMode:      boolWithDefault(lookup, "ROUTE_WEB_DEV", false),
			TemplatesDir: stringWithDefault(lookup, "ROUTE_WEB_TEMPLATES_DIR", defaultTemplatesDir),
			PublicDir:    stringWithDefault(lookup, "ROUTE_WEB_PUBLIC_DIR", defaultPublicDir),
			LocalesDir:   stringWithDefault(lookup, "ROUTE_WEB_LOCALES_DIR", defaultLocalesDir),
			ContentDir:   stringWithDefault(lookup, "ROUTE_WEB_CONTENT_DIR", defaultContentDir),
			FallbackLang: strings.ToLower(stringWithDefault(lookup, "ROUTE_WEB_FALLBACK_LANG", defaultFallbackLang)),
		},
		Session: SessionConfig{
			HashKey:  stringWithDefault(lookup, "ROUTE_SESSION_HASH_KEY", ""),
			BlockKey: stringWithDefault(lookup, "ROUTE_SESSION_BLOCK_KEY", ""),
		},
		Database: DatabaseConfig{
			Path: stringWithDefault(lookup, "ROUTE_DB_PATH", defaultDatabasePath),
		},
		Geocoder: GeocoderConfig{
			BaseURL:    stringWithDefault(lookup, "ROUTE_GEOCODER_BASE_URL", defaultGeocoderBaseURL),
			UserAgent:  stringWithDefault(lookup, "ROUTE_GEOCODER_USER_AGENT", defaultGeocoderUserAgent),
			Email:      stringWithDefault(lookup, "ROUTE_GEOCODER_EMAIL", ""),
			Timeout:    durationWithDefault(lookup, "ROUTE_GEOCODER_TIMEOUT", defaultGeocoderTimeout),
			Attempts:   intWithDefault(lookup, "ROUTE_GEOCODER_ATTEMPTS", defaultGeocoderAttempts),
			RetryDelay: durationWithDefault(lookup, "ROUTE_GEOCODER_RETRY_DELAY", defaultGeocoderRetryDelay),
			Interval:   durationWithDefault(lookup, "ROUTE_GEOCODER_INTERVAL", defaultGeocoderInterval),
			CacheTTL:   durationWithDefault(lookup, "ROUTE_GEOCODER_CACHE_TTL", defaultGeocoderCacheTTL),
		},
		Routing: RoutingConfig{
			BaseURL: stringWithDefault(lookup, "ROUTE_ORS_BASE_URL", defaultRoutingBaseURL),
			APIKey:  stringWithDefault(lookup, "ROUTE_ORS_API_KEY", stringWithDefault(lookup, "ORS_API_KEY", "")),
			Profile: stringWithDefault(lookup, "ROUTE_ORS_PROFILE", defaultRoutingProfile),
			Timeout: durationWithDefault(lookup, "ROUTE_ORS_TIMEOUT", defaultRoutingTimeout),
		},
		Map: MapConfig{
			TileURL:     stringWithDefault(lookup, "ROUTE_MAP_TILE_URL", defaultMapTileURL),
			Attribution: stringWithDefault(lookup, "ROUTE_MAP_ATTRIBUTION", defaultMapAttribution),
			Zoom:        intWithDefault(lookup, "ROUTE_MAP_ZOOM", defaultMapZoom),
		},
		Planner: PlannerConfig{
			MaxAddresses: intWithDefault(lookup, "ROUTE_PLANNER_MAX_ADDRESSES", defaultMaxAddresses),
			PresetsFile:  stringWithDefault(lookup, "ROUTE_PLANNER_PRESETS_FILE", ""),
		},
		RateLimits: RateLimitConfig{
			OptimizePerMinute: intWithDefault(lookup, "ROUTE_RATELIMIT_OPTIMIZE_PER_MIN", defaultOptimizePerMinute),
		},
		Logging: LoggingConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", "info"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		missing = append(missing, "Database.Path")
	}
	if strings.TrimSpace(cfg.Geocoder.BaseURL) == "" {
		missing = append(missing, "Geocoder.BaseURL")
	}
	if strings.TrimSpace(cfg.Geocoder.UserAgent) == "" {
		missing = append(missing, "Geocoder.UserAgent")
	}
	if cfg.Geocoder.Attempts < 1 {
		missing = append(missing, "Geocoder.Attempts")
	}
	if cfg.Geocoder.Timeout <= 0 {
		missing = append(missing, "Geocoder.Timeout")
	}
	if cfg.Geocoder.Interval < 0 {
		missing = append(missing, "Geocoder.Interval")
	}
	if strings.TrimSpace(cfg.Routing.Profile) == "" {
		missing = append(missing, "Routing.Profile")
	}
	if cfg.Map.Zoom < 1 || cfg.Map.Zoom > 19 {
		missing = append(missing, "Map.Zoom")
	}
	if cfg.Planner.MaxAddresses < 2 {
		missing = append(missing, "Planner.MaxAddresses")
	}
	if cfg.RateLimits.OptimizePerMinute < 0 {
		missing = append(missing, "RateLimits.OptimizePerMinute")
	}
	if cfg.Server.Production() {
		if n := len(cfg.Session.HashKey); n != 32 && n != 64 {
			missing = append(missing, "Session.HashKey")
		}
		if n := len(cfg.Session.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
			missing = append(missing, "Session.BlockKey")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
