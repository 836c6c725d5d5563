package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// Hard limits on the correlation pass; its cost grows with metrics² × lags.
const (
	MaxCorrelationMetrics = 50
	MaxCorrelationLag     = 60
)

// Config captures every setting required to boot the insights engine.
type Config struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Store      StoreConfig        `yaml:"store"`
	Sink       SinkConfig         `yaml:"sink"`
	Cache      CacheConfig        `yaml:"cache"`
	Analysis   AnalysisConfig     `yaml:"analysis"`
	Schedule   ScheduleConfig     `yaml:"schedule"`
	Metrics    []models.SeriesKey `yaml:"metrics"`
	Components []ComponentConfig  `yaml:"components"`
	Rules      RulesConfig        `yaml:"rules"`
}

// ServerConfig controls the gRPC listener and the admin HTTP endpoint.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	AdminAddress    string        `yaml:"adminAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	Reflection      bool          `yaml:"reflection"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string        `yaml:"level"`
	JSON  bool          `yaml:"json"`
	File  LogFileConfig `yaml:"file"`
}

// LogFileConfig enables a rotating log file when Path is set.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// Store backends.
const (
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendSQL      = "sql"
	BackendLog      = "log"
)

// StoreConfig selects where time series are read from.
type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	BaseURL      string        `yaml:"baseURL"`
	SeriesPath   string        `yaml:"seriesPath"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
	Migrate      bool          `yaml:"migrate"`
}

// SinkConfig selects where anomalies and insights are written to.
type SinkConfig struct {
	Backend       string        `yaml:"backend"`
	BaseURL       string        `yaml:"baseURL"`
	AnomaliesPath string        `yaml:"anomaliesPath"`
	InsightsPath  string        `yaml:"insightsPath"`
	APIKey        string        `yaml:"apiKey"`
	Timeout       time.Duration `yaml:"timeout"`
	QueueSize     int           `yaml:"queueSize"`
	Workers       int           `yaml:"workers"`
}

// CacheConfig controls Redis-backed caching of fetched series and the run lease.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SeriesTTL    time.Duration `yaml:"seriesTTL"`
}

// AnalysisConfig holds the analyzer thresholds. It is the only section applied on
// hot reload.
type AnalysisConfig struct {
	AnomalyThreshold     float64 `yaml:"anomalyThreshold"`
	GapFactor            float64 `yaml:"gapFactor"`
	StableSlope          float64 `yaml:"stableSlope"`
	ForecastWindow       int     `yaml:"forecastWindow"`
	ForecastHorizon      int     `yaml:"forecastHorizon"`
	CorrelationThreshold float64 `yaml:"correlationThreshold"`
	MaxLag               int     `yaml:"maxLag"`
	MaxMetrics           int     `yaml:"maxMetrics"`
	Granularity          string  `yaml:"granularity"`
	SeasonalityStrength  float64 `yaml:"seasonalityStrength"`
	CapacityThreshold    float64 `yaml:"capacityThreshold"`
	HorizonDays          int     `yaml:"horizonDays"`

	GranularityDuration time.Duration `yaml:"-"`
}

// ScheduleConfig drives the aggregator. Intervals and windows use the <digits><s|m|h|d>
// form and are parsed by Validate.
type ScheduleConfig struct {
	TickInterval   string `yaml:"tickInterval"`
	SweepInterval  string `yaml:"sweepInterval"`
	ShortWindow    string `yaml:"shortWindow"`
	SweepWindow    string `yaml:"sweepWindow"`
	CapacityWindow string `yaml:"capacityWindow"`
	Workers        int    `yaml:"workers"`
	TopN           int    `yaml:"topN"`
	Lease          bool   `yaml:"lease"`
	RunOnStart     bool   `yaml:"runOnStart"`

	Tick         time.Duration `yaml:"-"`
	Sweep        time.Duration `yaml:"-"`
	Short        time.Duration `yaml:"-"`
	SweepSpan    time.Duration `yaml:"-"`
	CapacitySpan time.Duration `yaml:"-"`
}

// ComponentConfig names a capacity-tracked component and its utilization metrics.
type ComponentConfig struct {
	Name    string             `yaml:"name"`
	Metrics []models.SeriesKey `yaml:"metrics"`
}

// RulesConfig controls rule-pack loading for capacity recommendations.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file, a .env file and environment overrides,
// then validates it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("MIRADOR_INSIGHTS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			AdminAddress:    ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  LogFileConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		},
		Store: StoreConfig{
			Backend:      BackendHTTP,
			BaseURL:      "http://localhost:8080",
			SeriesPath:   "/api/v1/series",
			Timeout:      5 * time.Second,
			MaxOpenConns: 10,
		},
		Sink: SinkConfig{
			Backend:       BackendLog,
			AnomaliesPath: "/api/v1/anomalies",
			InsightsPath:  "/api/v1/insights",
			Timeout:       5 * time.Second,
			QueueSize:     256,
			Workers:       2,
		},
		Cache: CacheConfig{
			SeriesTTL:    2 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Analysis: AnalysisConfig{
			AnomalyThreshold:     2.5,
			GapFactor:            2,
			StableSlope:          0.01,
			ForecastWindow:       10,
			ForecastHorizon:      12,
			CorrelationThreshold: 0.3,
			MaxLag:               12,
			MaxMetrics:           20,
			Granularity:          "5m",
			SeasonalityStrength:  0.3,
			CapacityThreshold:    90,
			HorizonDays:          30,
		},
		Schedule: ScheduleConfig{
			TickInterval:   "5m",
			SweepInterval:  "1d",
			ShortWindow:    "1h",
			SweepWindow:    "7d",
			CapacityWindow: "30d",
			Workers:        8,
			TopN:           20,
		},
		Rules: RulesConfig{Path: "configs/rules/capacity.yaml"},
	}
}

// Validate checks thresholds and limits and parses every window string. It must
// succeed before the configuration is used.
func (c *Config) Validate() error {
	const op = "config.Validate"

	windows := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"schedule.tickInterval", c.Schedule.TickInterval, &c.Schedule.Tick},
		{"schedule.sweepInterval", c.Schedule.SweepInterval, &c.Schedule.Sweep},
		{"schedule.shortWindow", c.Schedule.ShortWindow, &c.Schedule.Short},
		{"schedule.sweepWindow", c.Schedule.SweepWindow, &c.Schedule.SweepSpan},
		{"schedule.capacityWindow", c.Schedule.CapacityWindow, &c.Schedule.CapacitySpan},
	}
	for _, w := range windows {
		d, err := utils.ParseWindow(w.value)
		if err != nil {
			return utils.NewAppError(op, w.name, err)
		}
		*w.dst = d
	}
	if c.Schedule.Workers <= 0 {
		return utils.NewAppError(op, "schedule.workers must be positive", nil)
	}
	if c.Schedule.TopN <= 0 {
		return utils.NewAppError(op, "schedule.topN must be positive", nil)
	}

	if err := c.Analysis.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendHTTP:
		if c.Store.BaseURL == "" {
			return utils.NewAppError(op, "store.baseURL is required for the http backend", nil)
		}
	case BackendPostgres, BackendSQLite:
		if c.Store.DSN == "" {
			return utils.NewAppError(op, "store.dsn is required for "+c.Store.Backend, nil)
		}
	default:
		return utils.NewAppError(op, fmt.Sprintf("unknown store.backend %q", c.Store.Backend), nil)
	}

	switch c.Sink.Backend {
	case BackendHTTP:
		if c.Sink.BaseURL == "" {
			return utils.NewAppError(op, "sink.baseURL is required for the http backend", nil)
		}
	case BackendSQL:
		if c.Store.Backend != BackendPostgres && c.Store.Backend != BackendSQLite {
			return utils.NewAppError(op, "sink.backend sql requires a postgres or sqlite store", nil)
		}
	case BackendLog:
	default:
		return utils.NewAppError(op, fmt.Sprintf("unknown sink.backend %q", c.Sink.Backend), nil)
	}
	if c.Sink.QueueSize <= 0 {
		return utils.NewAppError(op, "sink.queueSize must be positive", nil)
	}

	for i, m := range c.Metrics {
		if m.Metric == "" {
			return utils.NewAppError(op, fmt.Sprintf("metrics[%d].metric is required", i), nil)
		}
	}
	for i, comp := range c.Components {
		if comp.Name == "" {
			return utils.NewAppError(op, fmt.Sprintf("components[%d].name is required", i), nil)
		}
		if len(comp.Metrics) == 0 {
			return utils.NewAppError(op, fmt.Sprintf("component %s has no metrics", comp.Name), nil)
		}
	}
	return nil
}

// Validate checks the analyzer thresholds and parses the correlation granularity.
func (a *AnalysisConfig) Validate() error {
	const op = "config.Analysis"

	if a.AnomalyThreshold <= 0 {
		return utils.NewAppError(op, "anomalyThreshold must be positive", nil)
	}
	if a.GapFactor <= 1 {
		return utils.NewAppError(op, "gapFactor must be greater than 1", nil)
	}
	if a.CorrelationThreshold <= 0 || a.CorrelationThreshold > 1 {
		return utils.NewAppError(op, "correlationThreshold must be in (0,1]", nil)
	}
	if a.MaxMetrics < 2 || a.MaxMetrics > MaxCorrelationMetrics {
		return utils.NewAppError(op, fmt.Sprintf("maxMetrics must be between 2 and %d", MaxCorrelationMetrics), nil)
	}
	if a.MaxLag < 0 || a.MaxLag > MaxCorrelationLag {
		return utils.NewAppError(op, fmt.Sprintf("maxLag must be between 0 and %d", MaxCorrelationLag), nil)
	}
	if a.CapacityThreshold <= 0 || a.CapacityThreshold > 100 {
		return utils.NewAppError(op, "capacityThreshold must be in (0,100]", nil)
	}
	if a.ForecastHorizon < 0 {
		return utils.NewAppError(op, "forecastHorizon must not be negative", nil)
	}
	d, err := utils.ParseWindow(a.Granularity)
	if err != nil {
		return utils.NewAppError(op, "granularity", err)
	}
	a.GranularityDuration = d
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_INSIGHTS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_ADMIN_ADDRESS"); v != "" {
		cfg.Server.AdminAddress = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_LOG_FILE"); v != "" {
		cfg.Logging.File.Path = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_STORE_URL"); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_STORE_API_KEY"); v != "" {
		cfg.Store.APIKey = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_SINK_BACKEND"); v != "" {
		cfg.Sink.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_SINK_URL"); v != "" {
		cfg.Sink.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_SINK_API_KEY"); v != "" {
		cfg.Sink.APIKey = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_SERIES_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SeriesTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TICK_INTERVAL"); v != "" {
		cfg.Schedule.TickInterval = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_SWEEP_INTERVAL"); v != "" {
		cfg.Schedule.SweepInterval = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schedule.Workers = n
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schedule.TopN = n
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.AnomalyThreshold = f
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CORRELATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.CorrelationThreshold = f
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CAPACITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.CapacityThreshold = f
		}
	}
}
