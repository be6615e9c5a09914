// Package config holds the pipeline configuration. Defaults are built in,
// an optional YAML file (with ${VAR} expansion) overrides them, and the
// recognized environment variables override both. Configuration is loaded
// once at startup and treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afrostorm/hazardwatch/pkg/geo"
)

// Config is the root configuration for the hazard-intelligence engine.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Detection DetectionConfig `yaml:"detection"`
	Sources   SourcesConfig   `yaml:"sources"`
	Store     StoreConfig     `yaml:"store"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Query     QueryConfig     `yaml:"query"`
	API       APIConfig       `yaml:"api"`
}

// FrameworkConfig contains general settings.
type FrameworkConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// MonitorConfig drives the scheduler.
type MonitorConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	CycleBudget   time.Duration `yaml:"cycle_budget"`
	AlertLogDir   string        `yaml:"alert_log_dir"`
	AlertLogKeepN int           `yaml:"alert_log_keep_n"`
}

// DetectionConfig holds detector thresholds.
type DetectionConfig struct {
	Basin           geo.BBox `yaml:"basin"`
	MinPressureHPa  float64  `yaml:"min_pressure_hpa"`
	MinWindMS       float64  `yaml:"min_wind_ms"`
	MinFloodAreaKm2 float64  `yaml:"min_flood_area_km2"`
	LandslideTopN   int      `yaml:"landslide_top_n"`
	AlertConfidence float64  `yaml:"alert_confidence_threshold"`
	ConvergenceKm   float64  `yaml:"convergence_distance_km"`
}

// SourcesConfig configures the upstream providers.
type SourcesConfig struct {
	ForecastURL      string        `yaml:"forecast_url"`
	ReanalysisURL    string        `yaml:"reanalysis_url"`
	FloodURL         string        `yaml:"flood_url"`
	TerrainURL       string        `yaml:"terrain_url"`
	OutbreakURL      string        `yaml:"outbreak_url"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	ArchiveTimeout   time.Duration `yaml:"archive_timeout"`
	OutbreakLookback time.Duration `yaml:"outbreak_lookback"`
}

// StoreConfig locates the hazard store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AlertsConfig configures dispatch channels and bookkeeping.
type AlertsConfig struct {
	SMTPHost          string        `yaml:"smtp_host"`
	SMTPPort          int           `yaml:"smtp_port"`
	SMTPUser          string        `yaml:"smtp_user"`
	SMTPPassword      string        `yaml:"smtp_password"`
	SMTPFrom          string        `yaml:"smtp_from"`
	SMTPTimeout       time.Duration `yaml:"smtp_timeout"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
	TrackingPixelBase string        `yaml:"tracking_pixel_base"`
	DedupWindow       time.Duration `yaml:"dedup_window"`
}

// QueryConfig configures the unified hazards query.
type QueryConfig struct {
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CycloneLookback  time.Duration `yaml:"cyclone_lookback"`
	FloodLookback    time.Duration `yaml:"flood_lookback"`
	WaterlogLookback time.Duration `yaml:"waterlog_lookback"`
}

// APIConfig configures the HTTP façade.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Framework: FrameworkConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Monitor: MonitorConfig{
			CheckInterval: 6 * time.Hour,
			CycleBudget:   10 * time.Minute,
			AlertLogDir:   "./data/alert_logs",
			AlertLogKeepN: 200,
		},
		Detection: DetectionConfig{
			Basin:           geo.BBox{MinLat: -35, MaxLat: 0, MinLon: 20, MaxLon: 80},
			MinPressureHPa:  1005,
			MinWindMS:       17,
			MinFloodAreaKm2: 0.1,
			LandslideTopN:   50,
			AlertConfidence: 0.7,
			ConvergenceKm:   500,
		},
		Sources: SourcesConfig{
			FetchTimeout:     30 * time.Second,
			ArchiveTimeout:   5 * time.Minute,
			OutbreakLookback: 30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "./data/hazards.db",
		},
		Alerts: AlertsConfig{
			SMTPPort:       587,
			SMTPFrom:       "alerts@afrostorm.org",
			SMTPTimeout:    15 * time.Second,
			WebhookTimeout: 10 * time.Second,
			DedupWindow:    6 * time.Hour,
		},
		Query: QueryConfig{
			CacheTTL:         300 * time.Second,
			CycloneLookback:  24 * time.Hour,
			FloodLookback:    48 * time.Hour,
			WaterlogLookback: 72 * time.Hour,
		},
		API: APIConfig{
			Addr: ":9000",
		},
	}
}

// Load reads configuration: defaults, then the YAML file at path (if it
// exists; ${VAR} references are expanded), then the environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			expanded := []byte(os.ExpandEnv(string(data)))
			if err := yaml.Unmarshal(expanded, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers the recognized environment variables on top of the
// current values.
func (c *Config) applyEnv() error {
	if v := os.Getenv("CHECK_INTERVAL_HOURS"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHECK_INTERVAL_HOURS: %w", err)
		}
		c.Monitor.CheckInterval = time.Duration(h) * time.Hour
	}
	if err := envFloat("BASIN_N", &c.Detection.Basin.MaxLat); err != nil {
		return err
	}
	if err := envFloat("BASIN_S", &c.Detection.Basin.MinLat); err != nil {
		return err
	}
	if err := envFloat("BASIN_W", &c.Detection.Basin.MinLon); err != nil {
		return err
	}
	if err := envFloat("BASIN_E", &c.Detection.Basin.MaxLon); err != nil {
		return err
	}
	if err := envFloat("MIN_PRESSURE_HPA", &c.Detection.MinPressureHPa); err != nil {
		return err
	}
	if err := envFloat("MIN_WIND_MS", &c.Detection.MinWindMS); err != nil {
		return err
	}
	if err := envFloat("CONVERGENCE_DISTANCE_KM", &c.Detection.ConvergenceKm); err != nil {
		return err
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Alerts.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.Alerts.SMTPPort = p
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.Alerts.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.Alerts.SMTPPassword = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.Alerts.SMTPFrom = v
	}
	if v := os.Getenv("TRACKING_PIXEL_BASE"); v != "" {
		c.Alerts.TrackingPixelBase = v
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CACHE_TTL_SECONDS: %w", err)
		}
		c.Query.CacheTTL = time.Duration(s) * time.Second
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Store.Path = v
	}
	return nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = f
	return nil
}

// Validate rejects configurations the pipeline cannot start with.
func (c *Config) Validate() error {
	if err := c.Detection.Basin.Validate(); err != nil {
		return fmt.Errorf("detection basin: %w", err)
	}
	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("monitor.check_interval must be positive")
	}
	if c.Detection.MinPressureHPa <= 0 {
		return fmt.Errorf("detection.min_pressure_hpa must be positive")
	}
	if c.Detection.ConvergenceKm <= 0 {
		return fmt.Errorf("detection.convergence_distance_km must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Query.CacheTTL < 0 {
		return fmt.Errorf("query.cache_ttl must not be negative")
	}
	return nil
}
