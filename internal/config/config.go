package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadgen/internal/api"
	"github.com/sells-group/leadgen/internal/browser"
	"github.com/sells-group/leadgen/internal/extract"
	"github.com/sells-group/leadgen/internal/jobs"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// JobsConfig configures the job orchestrator.
type JobsConfig struct {
	RetentionMins int    `yaml:"retention_mins" mapstructure:"retention_mins"`
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	PreviewLimit  int    `yaml:"preview_limit" mapstructure:"preview_limit"`
	DefaultLeads  int    `yaml:"default_leads" mapstructure:"default_leads"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath       string `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
}

// ExtractConfig configures the extraction engine.
type ExtractConfig struct {
	PrimaryURL         string  `yaml:"primary_url" mapstructure:"primary_url"`
	SearchURL          string  `yaml:"search_url" mapstructure:"search_url"`
	MapURL             string  `yaml:"map_url" mapstructure:"map_url"`
	MaxIterations      int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	StagnationLimit    int     `yaml:"stagnation_limit" mapstructure:"stagnation_limit"`
	FallbackIterations int     `yaml:"fallback_iterations" mapstructure:"fallback_iterations"`
	FallbackStagnation int     `yaml:"fallback_stagnation" mapstructure:"fallback_stagnation"`
	SettleDelayMs      int     `yaml:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	NavTimeoutSecs     int     `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	NavRatePerSec      float64 `yaml:"nav_rate_per_sec" mapstructure:"nav_rate_per_sec"`
	NavBurst           int     `yaml:"nav_burst" mapstructure:"nav_burst"`
	DetailRetries      int     `yaml:"detail_retries" mapstructure:"detail_retries"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSec int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	SelectorsFile      string  `yaml:"selectors_file" mapstructure:"selectors_file"`
}

// StoreConfig configures the job history archive. An empty driver disables
// it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures job health alerts computed from the archive.
// Alerts are only checked while serving with a webhook URL and an archive.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	NoResultsThreshold   float64 `yaml:"no_results_threshold" mapstructure:"no_results_threshold"`
	MinAvgLeads          float64 `yaml:"min_avg_leads" mapstructure:"min_avg_leads"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := extract.DefaultConfig()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("jobs.retention_mins", 60)
	v.SetDefault("jobs.output_dir", filepath.Join(os.TempDir(), "leadgen"))
	v.SetDefault("jobs.preview_limit", 20)
	v.SetDefault("jobs.default_leads", 20)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", def.ViewportWidth)
	v.SetDefault("browser.viewport_height", def.ViewportHeight)
	v.SetDefault("extract.primary_url", def.PrimaryURL)
	v.SetDefault("extract.search_url", def.SearchURL)
	v.SetDefault("extract.map_url", def.MapURL)
	v.SetDefault("extract.max_iterations", def.MaxIterations)
	v.SetDefault("extract.stagnation_limit", def.StagnationLimit)
	v.SetDefault("extract.fallback_iterations", def.FallbackIterations)
	v.SetDefault("extract.fallback_stagnation", def.FallbackStagnation)
	v.SetDefault("extract.settle_delay_ms", def.SettleDelay.Milliseconds())
	v.SetDefault("extract.nav_timeout_secs", int(def.NavTimeout.Seconds()))
	v.SetDefault("extract.nav_rate_per_sec", def.NavRate)
	v.SetDefault("extract.nav_burst", def.NavBurst)
	v.SetDefault("extract.detail_retries", def.DetailRetries)
	v.SetDefault("extract.breaker_threshold", def.BreakerThreshold)
	v.SetDefault("extract.breaker_cooldown_secs", int(def.BreakerCooldown.Seconds()))
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.no_results_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command needs. Mode is "serve", "scrape"
// or "jobs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validateExtraction()...)
	case "scrape":
		errs = append(errs, c.validateExtraction()...)
	case "jobs":
		if c.Store.Driver == "" {
			errs = append(errs, "store.driver is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (use sqlite)", c.Store.Driver))
	}
	if c.Store.Driver != "" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required when store.driver is set")
	}

	m := c.Monitoring
	if m.FailureRateThreshold < 0 || m.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if m.NoResultsThreshold < 0 || m.NoResultsThreshold > 1 {
		errs = append(errs, "monitoring.no_results_threshold must be between 0 and 1")
	}
	if m.WebhookURL != "" {
		if u, err := url.Parse(m.WebhookURL); err != nil || u.Host == "" {
			errs = append(errs, "monitoring.webhook_url must be an absolute URL")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExtraction() []string {
	var errs []string
	if c.Jobs.RetentionMins <= 0 {
		errs = append(errs, "jobs.retention_mins must be > 0")
	}
	if c.Jobs.OutputDir == "" {
		errs = append(errs, "jobs.output_dir is required")
	}
	if c.Jobs.DefaultLeads < 1 || c.Jobs.DefaultLeads > 100 {
		errs = append(errs, "jobs.default_leads must be between 1 and 100")
	}
	if c.Extract.PrimaryURL == "" && c.Extract.SearchURL == "" && c.Extract.MapURL == "" {
		errs = append(errs, "at least one of extract.primary_url, extract.search_url, extract.map_url is required")
	}
	for _, u := range []struct{ key, raw string }{
		{"extract.primary_url", c.Extract.PrimaryURL},
		{"extract.search_url", c.Extract.SearchURL},
		{"extract.map_url", c.Extract.MapURL},
	} {
		key, raw := u.key, u.raw
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "{query}") {
			errs = append(errs, key+" must contain {query}")
			continue
		}
		if u, err := url.Parse(strings.ReplaceAll(raw, "{query}", "q")); err != nil || u.Host == "" {
			errs = append(errs, key+" must be an absolute URL")
		}
	}
	if c.Extract.MaxIterations < 1 {
		errs = append(errs, "extract.max_iterations must be >= 1")
	}
	if c.Extract.StagnationLimit < 1 {
		errs = append(errs, "extract.stagnation_limit must be >= 1")
	}
	if c.Extract.NavRatePerSec < 0 {
		errs = append(errs, "extract.nav_rate_per_sec must be >= 0")
	}
	if c.Extract.DetailRetries < 1 || c.Extract.DetailRetries > 10 {
		errs = append(errs, "extract.detail_retries must be between 1 and 10")
	}
	return errs
}

// EngineConfig converts the extract and browser sections into engine
// settings.
func (c *Config) EngineConfig() extract.Config {
	return extract.Config{
		PrimaryURL:         c.Extract.PrimaryURL,
		SearchURL:          c.Extract.SearchURL,
		MapURL:             c.Extract.MapURL,
		MaxIterations:      c.Extract.MaxIterations,
		StagnationLimit:    c.Extract.StagnationLimit,
		FallbackIterations: c.Extract.FallbackIterations,
		FallbackStagnation: c.Extract.FallbackStagnation,
		SettleDelay:        time.Duration(c.Extract.SettleDelayMs) * time.Millisecond,
		NavTimeout:         time.Duration(c.Extract.NavTimeoutSecs) * time.Second,
		NavRate:            c.Extract.NavRatePerSec,
		NavBurst:           c.Extract.NavBurst,
		DetailRetries:      c.Extract.DetailRetries,
		BreakerThreshold:   c.Extract.BreakerThreshold,
		BreakerCooldown:    time.Duration(c.Extract.BreakerCooldownSec) * time.Second,
		ViewportWidth:      c.Browser.ViewportWidth,
		ViewportHeight:     c.Browser.ViewportHeight,
	}
}

// BrowserOptions converts the browser section into chromedp launch options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:      c.Browser.Headless,
		ExecPath:      c.Browser.ExecPath,
		UserAgent:     c.Browser.UserAgent,
		ActionTimeout: time.Duration(c.Extract.NavTimeoutSecs) * time.Second,
	}
}

// OrchestratorConfig converts the jobs section into orchestrator settings.
func (c *Config) OrchestratorConfig() jobs.Config {
	return jobs.Config{
		Retention: time.Duration(c.Jobs.RetentionMins) * time.Minute,
		OutputDir: c.Jobs.OutputDir,
	}
}

// HTTPConfig converts the server and jobs sections into HTTP settings.
func (c *Config) HTTPConfig() api.Config {
	return api.Config{
		CORSOrigins:  c.Server.CORSOrigins,
		PreviewLimit: c.Jobs.PreviewLimit,
		DefaultLeads: c.Jobs.DefaultLeads,
	}
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
