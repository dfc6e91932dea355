package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Models     ModelsConfig     `yaml:"models" mapstructure:"models"`
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Binning    BinningConfig    `yaml:"binning" mapstructure:"binning"`
	Geometry   GeometryConfig   `yaml:"geometry" mapstructure:"geometry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`

	// Transient write failures (busy database, dropped connection) are
	// retried with exponential backoff.
	RetryAttempts     int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// EngineConfig configures the remote ray-tracing engine client.
type EngineConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateBurst    int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// Timeout returns the per-request timeout.
func (c EngineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ModelsConfig locates the optical model description files.
type ModelsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ConservationConfig controls the forward+reverse flux conservation check.
type ConservationConfig struct {
	Mode      string  `yaml:"mode" mapstructure:"mode"`
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// SimulationConfig configures the ghost simulation engine.
type SimulationConfig struct {
	Band            string             `yaml:"band" mapstructure:"band"`
	NRad            int                `yaml:"nrad" mapstructure:"nrad"`
	NAz             int                `yaml:"naz" mapstructure:"naz"`
	MinFlux         float64            `yaml:"min_flux" mapstructure:"min_flux"`
	Scaling         string             `yaml:"scaling" mapstructure:"scaling"`
	Concurrency     int                `yaml:"concurrency" mapstructure:"concurrency"`
	StarTimeoutSecs int                `yaml:"star_timeout_secs" mapstructure:"star_timeout_secs"`
	DefaultDetector string             `yaml:"default_detector" mapstructure:"default_detector"`
	Verbose         bool               `yaml:"verbose" mapstructure:"verbose"`
	Conservation    ConservationConfig `yaml:"conservation" mapstructure:"conservation"`
}

// StarTimeout returns the per-star deadline, zero meaning none.
func (c SimulationConfig) StarTimeout() time.Duration {
	return time.Duration(c.StarTimeoutSecs) * time.Second
}

// BinningConfig sets the default focal-plane image shape.
type BinningConfig struct {
	BinsX int `yaml:"bins_x" mapstructure:"bins_x"`
	BinsY int `yaml:"bins_y" mapstructure:"bins_y"`
	// MaxBins caps each axis of any requested image.
	MaxBins int `yaml:"max_bins" mapstructure:"max_bins"`
}

// GeometryConfig overrides the detector mosaic extent (mm) and plate scale.
type GeometryConfig struct {
	MinX       float64 `yaml:"fp_min_x" mapstructure:"fp_min_x"`
	MaxX       float64 `yaml:"fp_max_x" mapstructure:"fp_max_x"`
	MinY       float64 `yaml:"fp_min_y" mapstructure:"fp_min_y"`
	MaxY       float64 `yaml:"fp_max_y" mapstructure:"fp_max_y"`
	PixelScale float64 `yaml:"pixel_scale" mapstructure:"pixel_scale"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter    string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// MonitoringConfig configures the run health checker started by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleRunHours        int     `yaml:"stale_run_hours" mapstructure:"stale_run_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RAYVEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rayven.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.retry_attempts", 4)
	v.SetDefault("store.retry_backoff_ms", 100)
	v.SetDefault("store.retry_max_backoff_ms", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("engine.base_url", "http://localhost:8000")
	v.SetDefault("engine.timeout_secs", 600)
	v.SetDefault("engine.rate_limit_rps", 2.0)
	v.SetDefault("engine.rate_burst", 1)
	v.SetDefault("models.dir", "models")
	v.SetDefault("simulation.band", "r")
	v.SetDefault("simulation.nrad", 300)
	v.SetDefault("simulation.naz", 2000)
	v.SetDefault("simulation.min_flux", 1e-4)
	v.SetDefault("simulation.scaling", "constant")
	v.SetDefault("simulation.concurrency", 1)
	v.SetDefault("simulation.star_timeout_secs", 600)
	v.SetDefault("simulation.default_detector", "ITL")
	v.SetDefault("simulation.conservation.mode", "warn")
	v.SetDefault("simulation.conservation.tolerance", 0.05)
	v.SetDefault("binning.bins_x", 500)
	v.SetDefault("binning.bins_y", 500)
	v.SetDefault("binning.max_bins", 4096)
	v.SetDefault("geometry.fp_min_x", -325.0)
	v.SetDefault("geometry.fp_max_x", 325.0)
	v.SetDefault("geometry.fp_min_y", -325.0)
	v.SetDefault("geometry.fp_max_y", 325.0)
	v.SetDefault("geometry.pixel_scale", 0.2)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_run_hours", 12)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command needs. Mode is one of
// "simulate", "serve" or "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "simulate":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateSimulation()...)
		if c.Engine.BaseURL == "" {
			errs = append(errs, "engine.base_url is required")
		}
		if c.Engine.RateLimitRPS < 0 {
			errs = append(errs, "engine.rate_limit_rps must be >= 0")
		}
		if c.Models.Dir == "" {
			errs = append(errs, "models.dir is required")
		}
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Binning.BinsX <= 0 || c.Binning.BinsY <= 0 {
		errs = append(errs, "binning.bins_x and binning.bins_y must be > 0")
	}
	if c.Binning.MaxBins <= 0 {
		errs = append(errs, "binning.max_bins must be > 0")
	} else if c.Binning.BinsX > c.Binning.MaxBins || c.Binning.BinsY > c.Binning.MaxBins {
		errs = append(errs, fmt.Sprintf("binning.bins_x and binning.bins_y must be <= binning.max_bins (%d)", c.Binning.MaxBins))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("store.retry_attempts must be >= 0, got %d", c.Store.RetryAttempts))
	}
	return errs
}

func (c *Config) validateSimulation() []string {
	var errs []string
	s := c.Simulation
	if s.NRad <= 0 || s.NAz <= 0 {
		errs = append(errs, "simulation.nrad and simulation.naz must be > 0")
	}
	if s.MinFlux <= 0 {
		errs = append(errs, "simulation.min_flux must be > 0")
	}
	if s.Concurrency < 1 || s.Concurrency > 64 {
		errs = append(errs, "simulation.concurrency must be between 1 and 64")
	}
	if s.StarTimeoutSecs < 0 {
		errs = append(errs, "simulation.star_timeout_secs must be >= 0")
	}
	switch s.Conservation.Mode {
	case "warn", "strict", "off":
	default:
		errs = append(errs, fmt.Sprintf("simulation.conservation.mode must be warn, strict or off, got %q", s.Conservation.Mode))
	}
	if s.Conservation.Tolerance < 0 || s.Conservation.Tolerance > 1 {
		errs = append(errs, "simulation.conservation.tolerance must be between 0 and 1")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
