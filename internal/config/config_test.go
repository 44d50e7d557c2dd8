package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml or .env is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 60, cfg.Jobs.RetentionMins)
	assert.Equal(t, 20, cfg.Jobs.PreviewLimit)
	assert.Equal(t, 20, cfg.Jobs.DefaultLeads)
	assert.NotEmpty(t, cfg.Jobs.OutputDir)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1366, cfg.Browser.ViewportWidth)
	assert.Equal(t, 900, cfg.Browser.ViewportHeight)
	assert.Equal(t, "https://www.google.com/maps/search/{query}", cfg.Extract.PrimaryURL)
	assert.Equal(t, 20, cfg.Extract.MaxIterations)
	assert.Equal(t, 4, cfg.Extract.StagnationLimit)
	assert.Equal(t, 8, cfg.Extract.FallbackIterations)
	assert.Equal(t, 2000, cfg.Extract.SettleDelayMs)
	assert.Equal(t, 30, cfg.Extract.NavTimeoutSecs)
	assert.InDelta(t, 1.0, cfg.Extract.NavRatePerSec, 0.001)
	assert.Equal(t, 2, cfg.Extract.DetailRetries)
	assert.Equal(t, 5, cfg.Extract.BreakerThreshold)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadgen.db", cfg.Store.DatabaseURL)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 0.5, cfg.Monitoring.NoResultsThreshold, 0.001)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
server:
  port: 9090
jobs:
  retention_mins: 15
extract:
  max_iterations: 5
  selectors_file: selectors.yaml
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Jobs.RetentionMins)
	assert.Equal(t, 5, cfg.Extract.MaxIterations)
	assert.Equal(t, "selectors.yaml", cfg.Extract.SelectorsFile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Extract.StagnationLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
server:
  port: 9090
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("LEADGEN_SERVER_PORT", "7070")
	t.Setenv("LEADGEN_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEADGEN_JOBS_DEFAULT_LEADS=35\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LEADGEN_JOBS_DEFAULT_LEADS") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 35, cfg.Jobs.DefaultLeads)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [port"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Jobs.RetentionMins = 60
	cfg.Jobs.OutputDir = "/tmp/leadgen"
	cfg.Jobs.DefaultLeads = 20
	cfg.Extract.PrimaryURL = "https://www.google.com/maps/search/{query}"
	cfg.Extract.MaxIterations = 20
	cfg.Extract.StagnationLimit = 4
	cfg.Extract.NavRatePerSec = 1
	cfg.Extract.DetailRetries = 2
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "leadgen.db"
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// scrape does not listen
	assert.NoError(t, cfg.Validate("scrape"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateExtraction(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"no strategy urls", func(c *Config) { c.Extract.PrimaryURL = "" }, "at least one of extract.primary_url"},
		{"url without placeholder", func(c *Config) { c.Extract.SearchURL = "https://www.google.com/search" }, "extract.search_url must contain {query}"},
		{"relative url", func(c *Config) { c.Extract.MapURL = "/maps?q={query}" }, "extract.map_url must be an absolute URL"},
		{"zero retention", func(c *Config) { c.Jobs.RetentionMins = 0 }, "jobs.retention_mins"},
		{"default leads too high", func(c *Config) { c.Jobs.DefaultLeads = 101 }, "jobs.default_leads must be between 1 and 100"},
		{"zero iterations", func(c *Config) { c.Extract.MaxIterations = 0 }, "extract.max_iterations"},
		{"negative rate", func(c *Config) { c.Extract.NavRatePerSec = -1 }, "extract.nav_rate_per_sec"},
		{"too many retries", func(c *Config) { c.Extract.DetailRetries = 11 }, "extract.detail_retries"},
		{"unsupported store", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver \"postgres\" is not supported"},
		{"store without url", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url is required"},
		{"failure threshold above one", func(c *Config) { c.Monitoring.FailureRateThreshold = 1.5 }, "monitoring.failure_rate_threshold"},
		{"negative no-results threshold", func(c *Config) { c.Monitoring.NoResultsThreshold = -0.1 }, "monitoring.no_results_threshold"},
		{"relative webhook", func(c *Config) { c.Monitoring.WebhookURL = "/hooks/alerts" }, "monitoring.webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("scrape")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJobs_RequiresStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = ""

	err := cfg.Validate("jobs")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver is required")

	// the archive is optional when serving
	assert.NoError(t, cfg.Validate("serve"))
}

func TestConversions(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.SettleDelayMs = 1500
	cfg.Extract.NavTimeoutSecs = 20
	cfg.Extract.BreakerCooldownSec = 45
	cfg.Browser.ViewportWidth = 1280
	cfg.Browser.ViewportHeight = 720
	cfg.Browser.UserAgent = "leadgen-test"
	cfg.Jobs.PreviewLimit = 10
	cfg.Server.CORSOrigins = []string{"https://app.example.com"}

	ec := cfg.EngineConfig()
	assert.Equal(t, 1500*time.Millisecond, ec.SettleDelay)
	assert.Equal(t, 20*time.Second, ec.NavTimeout)
	assert.Equal(t, 45*time.Second, ec.BreakerCooldown)
	assert.Equal(t, 1280, ec.ViewportWidth)
	assert.Equal(t, 720, ec.ViewportHeight)

	bo := cfg.BrowserOptions()
	assert.Equal(t, "leadgen-test", bo.UserAgent)
	assert.Equal(t, 20*time.Second, bo.ActionTimeout)

	oc := cfg.OrchestratorConfig()
	assert.Equal(t, time.Hour, oc.Retention)
	assert.Equal(t, "/tmp/leadgen", oc.OutputDir)

	hc := cfg.HTTPConfig()
	assert.Equal(t, 10, hc.PreviewLimit)
	assert.Equal(t, 20, hc.DefaultLeads)
	assert.Equal(t, []string{"https://app.example.com"}, hc.CORSOrigins)
}
