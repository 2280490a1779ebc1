package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	GeometURL    string
	BasemapURL   string
	BasemapLayer string
	WMSTimeout   time.Duration

	RequestTimeout time.Duration

	CacheTTL     time.Duration
	CacheBackend string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int

	FrameCadence    time.Duration
	PadFrames       int
	FrameDelay      time.Duration
	DefaultRadiusKm float64
	DefaultWidth    int
	DefaultHeight   int
	DisplayTimezone string

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	TrackedStations []string
	WarmCache       bool
	WarmInterval    time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WMS struct {
		GeometURL    string `yaml:"geomet_url"`
		BasemapURL   string `yaml:"basemap_url"`
		BasemapLayer string `yaml:"basemap_layer"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"wms"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceEnabled *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Radar struct {
		FrameCadence    string  `yaml:"frame_cadence"`
		PadFrames       *int    `yaml:"pad_frames"`
		FrameDelay      string  `yaml:"frame_delay"`
		DefaultRadiusKm float64 `yaml:"default_radius_km"`
		DefaultWidth    int     `yaml:"default_width"`
		DefaultHeight   int     `yaml:"default_height"`
		DisplayTimezone string  `yaml:"display_timezone"`
	} `yaml:"radar"`

	Warming struct {
		Enabled         *bool    `yaml:"enabled"`
		Interval        string   `yaml:"interval"`
		TrackedStations []string `yaml:"tracked_stations"`
	} `yaml:"warming"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.GeometURL = fc.WMS.GeometURL
	if cfg.GeometURL == "" {
		cfg.GeometURL = "https://geo.weather.gc.ca/geomet"
	}
	cfg.BasemapURL = fc.WMS.BasemapURL
	if cfg.BasemapURL == "" {
		cfg.BasemapURL = "http://maps.geogratis.gc.ca/wms/CBMT"
	}
	cfg.BasemapLayer = fc.WMS.BasemapLayer
	if cfg.BasemapLayer == "" {
		cfg.BasemapLayer = "CBMT"
	}
	cfg.WMSTimeout = parseDuration(fc.WMS.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 60*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 90*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.FrameCadence = parseDuration(fc.Radar.FrameCadence, 10*time.Minute)
	cfg.PadFrames = 3
	if fc.Radar.PadFrames != nil && *fc.Radar.PadFrames >= 0 {
		cfg.PadFrames = *fc.Radar.PadFrames
	}
	cfg.FrameDelay = parseDuration(fc.Radar.FrameDelay, 200*time.Millisecond)
	cfg.DefaultRadiusKm = fc.Radar.DefaultRadiusKm
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = 200
	}
	cfg.DefaultWidth = fc.Radar.DefaultWidth
	if cfg.DefaultWidth <= 0 {
		cfg.DefaultWidth = 800
	}
	cfg.DefaultHeight = fc.Radar.DefaultHeight
	if cfg.DefaultHeight <= 0 {
		cfg.DefaultHeight = 800
	}
	cfg.DisplayTimezone = strings.TrimSpace(fc.Radar.DisplayTimezone)
	if cfg.DisplayTimezone == "" {
		cfg.DisplayTimezone = "UTC"
	}

	cfg.WarmCache = false
	if fc.Warming.Enabled != nil {
		cfg.WarmCache = *fc.Warming.Enabled
	}
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, 30*time.Minute)
	cfg.TrackedStations = fc.Warming.TrackedStations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if
// parsing fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. The request timeout must leave
// room for a full loop run, which is many WMS round trips.
func validate(cfg *Config) error {
	if cfg.WMSTimeout <= 0 {
		return fmt.Errorf("wms.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WMSTimeout {
		cfg.RequestTimeout = cfg.WMSTimeout + 10*time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if _, err := time.LoadLocation(cfg.DisplayTimezone); err != nil {
		return fmt.Errorf("radar.display_timezone %q is not a valid IANA zone: %w", cfg.DisplayTimezone, err)
	}
	return nil
}
