package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
site:
  url: https://panel.example.com/home
  username: ops@example.com
browser:
  driver: static
  navigation_timeout: 45s
routes:
  - pattern: panel.example.com
    shape: admin_panel
locators:
  submit:
    - kind: css
      expr: "#go"
storage:
  backends: [sqlite, file]
  file_format: csv
scheduler:
  interval: 1h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panelgoat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 8000, cfg.API.Port)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 5*time.Minute, cfg.API.RefreshTimeout)
	assert.Equal(t, "rod", cfg.Browser.Driver)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://panel.example.com/home", cfg.Site.URL)
	assert.Equal(t, "ops@example.com", cfg.Site.Username)
	assert.Equal(t, "static", cfg.Browser.Driver)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Browser.LocatorTimeout, "unset keys keep defaults")
	require.Len(t, cfg.Routes, 1, "lists replace defaults")
	assert.Equal(t, "admin_panel", cfg.Routes[0].Shape)
	require.Len(t, cfg.Locators["submit"], 1)
	assert.Equal(t, "#go", cfg.Locators["submit"][0].Expr)
	assert.Equal(t, []string{"sqlite", "file"}, cfg.Storage.Backends)
	assert.Equal(t, "csv", cfg.Storage.FileFormat)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.NoError(t, Validate(cfg))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PANELGOAT_API_PORT", "9100")
	t.Setenv("PANELGOAT_SITE_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.API.Port)
	assert.Equal(t, "s3cret", cfg.Site.Password)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "site: [unclosed"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PANELGOAT_DOTENV_PROBE=from-file\nPANELGOAT_DOTENV_KEEP=from-file\n"), 0o644))
	t.Setenv("PANELGOAT_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("PANELGOAT_DOTENV_PROBE") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("PANELGOAT_DOTENV_PROBE"))
	assert.Equal(t, "from-env", os.Getenv("PANELGOAT_DOTENV_KEEP"))

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad url", func(c *Config) { c.Site.URL = "ftp://panel" }},
		{"bad driver", func(c *Config) { c.Browser.Driver = "selenium" }},
		{"zero navigation timeout", func(c *Config) { c.Browser.NavigationTimeout = 0 }},
		{"negative settle", func(c *Config) { c.Browser.ViewSettle = -time.Second }},
		{"bad shape", func(c *Config) { c.Routes = []RouteConfig{{Pattern: "x", Shape: "spa"}} }},
		{"empty route pattern", func(c *Config) { c.Routes = []RouteConfig{{Shape: "generic"}} }},
		{"bad locator kind", func(c *Config) {
			c.Locators = map[string][]LocatorConfig{"submit": {{Kind: "id", Expr: "go"}}}
		}},
		{"empty locator", func(c *Config) { c.Locators = map[string][]LocatorConfig{"submit": {{Kind: "css"}}} }},
		{"no backends", func(c *Config) { c.Storage.Backends = nil }},
		{"unknown backend", func(c *Config) { c.Storage.Backends = []string{"redis"} }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backends = []string{"postgres"} }},
		{"mongodb without uri", func(c *Config) { c.Storage.Backends = []string{"mongodb"} }},
		{"bad file format", func(c *Config) {
			c.Storage.Backends = []string{"file"}
			c.Storage.FileFormat = "xml"
		}},
		{"bad port", func(c *Config) { c.API.Port = 70000 }},
		{"short interval", func(c *Config) { c.Scheduler.Interval = time.Millisecond }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateDisabledSchedulerIgnoresInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.Enabled = false
	cfg.Scheduler.Interval = 0
	assert.NoError(t, Validate(cfg))
}
