package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and a .env file.
// Priority (highest to lowest): env vars > .env > config file > defaults.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("PANELGOAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("panelgoat")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".panelgoat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	// Every key has a registered default, so a zero Config is fully populated
	// and list values from the file replace the defaults instead of merging.
	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return out, nil
}

// loadDotEnv exports variables from a .env file without overriding the
// ones already present in the environment.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.url", cfg.Site.URL)
	v.SetDefault("site.username", cfg.Site.Username)
	v.SetDefault("site.password", cfg.Site.Password)
	v.SetDefault("site.debug_html_path", cfg.Site.DebugHTMLPath)

	v.SetDefault("browser.driver", cfg.Browser.Driver)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.remote_url", cfg.Browser.RemoteURL)
	v.SetDefault("browser.proxy", cfg.Browser.Proxy)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.locator_timeout", cfg.Browser.LocatorTimeout)
	v.SetDefault("browser.login_settle", cfg.Browser.LoginSettle)
	v.SetDefault("browser.indicator_timeout", cfg.Browser.IndicatorTimeout)
	v.SetDefault("browser.view_settle", cfg.Browser.ViewSettle)
	v.SetDefault("browser.max_body_size", cfg.Browser.MaxBodySize)

	v.SetDefault("routes", cfg.Routes)

	v.SetDefault("storage.backends", cfg.Storage.Backends)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)
	v.SetDefault("storage.file_dir", cfg.Storage.FileDir)
	v.SetDefault("storage.file_format", cfg.Storage.FileFormat)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)
	v.SetDefault("storage.timeout", cfg.Storage.Timeout)

	v.SetDefault("api.host", cfg.API.Host)
	v.SetDefault("api.port", cfg.API.Port)
	v.SetDefault("api.refresh_timeout", cfg.API.RefreshTimeout)

	v.SetDefault("scheduler.enabled", cfg.Scheduler.Enabled)
	v.SetDefault("scheduler.interval", cfg.Scheduler.Interval)
	v.SetDefault("scheduler.run_on_start", cfg.Scheduler.RunOnStart)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
