package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for PanelGoat.
type Config struct {
	Site      SiteConfig                 `mapstructure:"site"      yaml:"site"`
	Browser   BrowserConfig              `mapstructure:"browser"   yaml:"browser"`
	Routes    []RouteConfig              `mapstructure:"routes"    yaml:"routes"`
	Locators  map[string][]LocatorConfig `mapstructure:"locators"  yaml:"locators"`
	Storage   StorageConfig              `mapstructure:"storage"   yaml:"storage"`
	API       APIConfig                  `mapstructure:"api"       yaml:"api"`
	Scheduler SchedulerConfig            `mapstructure:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig              `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig              `mapstructure:"metrics"   yaml:"metrics"`
}

// SiteConfig identifies the panel to scrape and the credentials for it.
type SiteConfig struct {
	URL           string `mapstructure:"url"             yaml:"url"`
	Username      string `mapstructure:"username"        yaml:"username"`
	Password      string `mapstructure:"password"        yaml:"password"`
	DebugHTMLPath string `mapstructure:"debug_html_path" yaml:"debug_html_path"`
}

// BrowserConfig controls the browser driver and its timing budget.
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver"             yaml:"driver"` // rod, static
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Bin               string        `mapstructure:"bin"                yaml:"bin"`
	RemoteURL         string        `mapstructure:"remote_url"         yaml:"remote_url"`
	Proxy             string        `mapstructure:"proxy"              yaml:"proxy"`
	Stealth           bool          `mapstructure:"stealth"            yaml:"stealth"`
	WindowSize        string        `mapstructure:"window_size"        yaml:"window_size"`
	UserAgent         string        `mapstructure:"user_agent"         yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LocatorTimeout    time.Duration `mapstructure:"locator_timeout"    yaml:"locator_timeout"`
	LoginSettle       time.Duration `mapstructure:"login_settle"       yaml:"login_settle"`
	IndicatorTimeout  time.Duration `mapstructure:"indicator_timeout"  yaml:"indicator_timeout"`
	ViewSettle        time.Duration `mapstructure:"view_settle"        yaml:"view_settle"`
	MaxBodySize       int64         `mapstructure:"max_body_size"      yaml:"max_body_size"`
}

// RouteConfig maps a URL pattern to a site shape.
type RouteConfig struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Shape   string `mapstructure:"shape"   yaml:"shape"` // admin_panel, quotes, generic
}

// LocatorConfig is one declarative element locator.
type LocatorConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"` // css, xpath
	Expr string `mapstructure:"expr" yaml:"expr"`
	Text string `mapstructure:"text" yaml:"text"`
}

// StorageConfig controls snapshot persistence.
type StorageConfig struct {
	Backends        []string      `mapstructure:"backends"         yaml:"backends"` // sqlite, postgres, file, mongodb
	SQLitePath      string        `mapstructure:"sqlite_path"      yaml:"sqlite_path"`
	PostgresDSN     string        `mapstructure:"postgres_dsn"     yaml:"postgres_dsn"`
	FileDir         string        `mapstructure:"file_dir"         yaml:"file_dir"`
	FileFormat      string        `mapstructure:"file_format"      yaml:"file_format"` // json, csv
	MongoURI        string        `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string        `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string        `mapstructure:"mongo_collection" yaml:"mongo_collection"`
	Timeout         time.Duration `mapstructure:"timeout"          yaml:"timeout"`
}

// APIConfig controls the read API server.
type APIConfig struct {
	Host           string        `mapstructure:"host"            yaml:"host"`
	Port           int           `mapstructure:"port"            yaml:"port"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout" yaml:"refresh_timeout"`
}

// SchedulerConfig controls the periodic refresh.
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled"      yaml:"enabled"`
	Interval   time.Duration `mapstructure:"interval"     yaml:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			URL: "https://admin.golifenetwork.com/home",
		},
		Browser: BrowserConfig{
			Driver:            "rod",
			Headless:          true,
			Stealth:           true,
			WindowSize:        "1920,1080",
			NavigationTimeout: 30 * time.Second,
			LocatorTimeout:    2 * time.Second,
			LoginSettle:       3 * time.Second,
			IndicatorTimeout:  2 * time.Second,
			ViewSettle:        2 * time.Second,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
		},
		Routes: []RouteConfig{
			{Pattern: "admin.golifenetwork.com", Shape: "admin_panel"},
			{Pattern: "quotes.toscrape.com", Shape: "quotes"},
		},
		Storage: StorageConfig{
			Backends:        []string{"sqlite"},
			SQLitePath:      "./data/panelgoat.db",
			FileDir:         "./data",
			FileFormat:      "json",
			MongoDatabase:   "panelgoat",
			MongoCollection: "snapshots",
			Timeout:         10 * time.Second,
		},
		API: APIConfig{
			Port:           8000,
			RefreshTimeout: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: 6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
