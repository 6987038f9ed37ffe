// Package config loads Contile's settings from a YAML file overlaid with
// CONTILE_-prefixed environment variables, following the strict-unmarshal,
// defaults-then-override pattern used throughout the rest of this codebase.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/contile/contile/internal/common/configtypes"
	"github.com/contile/contile/internal/common/urlutil"
	"github.com/contile/contile/internal/common/yamlutil"
)

// Config holds every option named in §6 of the operating spec. Every field
// has a default applied by Load before the YAML file and environment
// overlay are considered.
type Config struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`

	AdmEndpointURL    string        `yaml:"adm_endpoint_url"`
	AdmPartnerID      string        `yaml:"adm_partner_id"`
	AdmSub1           string        `yaml:"adm_sub1"`
	AdmMaxTiles       int           `yaml:"adm_max_tiles"`
	AdmQueryTileCount int           `yaml:"adm_query_tile_count"`
	AdmTimeout        time.Duration `yaml:"adm_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	AdmSettingsPath   string        `yaml:"adm_settings"`

	TilesTTL            time.Duration `yaml:"tiles_ttl"`
	TilesFallbackTTL    time.Duration `yaml:"tiles_fallback_ttl"`
	AdmRefreshRateSecs  int           `yaml:"adm_refresh_rate_secs"`
	Jitter              float64       `yaml:"jitter"`

	MaxMindDBLoc    string `yaml:"maxminddb_loc"`
	FallbackCountry string `yaml:"fallback_country"`

	TestMode bool `yaml:"test_mode"`

	MetricsListen string `yaml:"metrics_listen"`

	EventLogPath string `yaml:"event_log_path"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration a freshly-started Contile uses when no
// file or environment overlay changes anything.
func Default() *Config {
	return &Config{
		Port:               8000,
		Host:               "0.0.0.0",
		AdmEndpointURL:     "",
		AdmPartnerID:       "",
		AdmSub1:            "",
		AdmMaxTiles:        3,
		AdmQueryTileCount:  10,
		AdmTimeout:         5 * time.Second,
		ConnectTimeout:     1 * time.Second,
		TilesTTL:           15 * time.Minute,
		TilesFallbackTTL:   30 * 24 * time.Hour,
		AdmRefreshRateSecs: 30,
		Jitter:             0.2,
		MaxMindDBLoc:       "",
		FallbackCountry:    "US",
		TestMode:           false,
		MetricsListen:      ":8001",
		EventLogPath:       "",
		LogLevel:           "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies any
// CONTILE_-prefixed environment variable overrides, and returns the result.
// An empty path is not an error; it yields Default() plus env overrides,
// matching Contile's behavior when run purely from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverlay(cfg)

	if cfg.AdmMaxTiles <= 0 {
		return nil, fmt.Errorf("config: adm_max_tiles must be positive, got %d", cfg.AdmMaxTiles)
	}
	if cfg.AdmQueryTileCount < cfg.AdmMaxTiles {
		cfg.AdmQueryTileCount = cfg.AdmMaxTiles
	}

	if cfg.AdmEndpointURL != "" && !cfg.TestMode {
		if err := validateAdmEndpoint(cfg.AdmEndpointURL); err != nil {
			return nil, fmt.Errorf("config: adm_endpoint_url: %w", err)
		}
	}

	if err := configtypes.ValidateListenAddress(cfg.MetricsListen); err != nil {
		return nil, fmt.Errorf("config: metrics_listen: %w", err)
	}

	return cfg, nil
}

// validateAdmEndpoint rejects an ADM endpoint whose host is a private/
// reserved IP literal outside test_mode, the same guard the teacher applies
// to its bypass-fetch target before connecting.
func validateAdmEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return urlutil.ValidateHostNotPrivateIP(u.Hostname())
}

const envPrefix = "CONTILE_"

// applyEnvOverlay mutates cfg in place for every recognized CONTILE_* env
// var present. Unset variables leave the corresponding field untouched.
func applyEnvOverlay(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	integer("PORT", &cfg.Port)
	str("HOST", &cfg.Host)
	str("ADM_ENDPOINT_URL", &cfg.AdmEndpointURL)
	str("ADM_PARTNER_ID", &cfg.AdmPartnerID)
	str("ADM_SUB1", &cfg.AdmSub1)
	integer("ADM_MAX_TILES", &cfg.AdmMaxTiles)
	integer("ADM_QUERY_TILE_COUNT", &cfg.AdmQueryTileCount)
	duration("ADM_TIMEOUT", &cfg.AdmTimeout)
	duration("CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	str("ADM_SETTINGS", &cfg.AdmSettingsPath)
	duration("TILES_TTL", &cfg.TilesTTL)
	duration("TILES_FALLBACK_TTL", &cfg.TilesFallbackTTL)
	integer("ADM_REFRESH_RATE_SECS", &cfg.AdmRefreshRateSecs)
	float("JITTER", &cfg.Jitter)
	str("MAXMINDDB_LOC", &cfg.MaxMindDBLoc)
	str("FALLBACK_COUNTRY", &cfg.FallbackCountry)
	boolean("TEST_MODE", &cfg.TestMode)
	str("METRICS_LISTEN", &cfg.MetricsListen)
	str("EVENT_LOG_PATH", &cfg.EventLogPath)
	str("LOG_LEVEL", &cfg.LogLevel)
}
