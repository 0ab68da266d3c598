package config

import (
	"fmt"
	"net/url"
	"time"
)

var (
	validDrivers     = map[string]bool{"rod": true, "static": true}
	validShapes      = map[string]bool{"admin_panel": true, "quotes": true, "generic": true}
	validKinds       = map[string]bool{"": true, "css": true, "xpath": true}
	validBackends    = map[string]bool{"sqlite": true, "postgres": true, "file": true, "mongodb": true}
	validFileFormats = map[string]bool{"json": true, "csv": true}
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Site.URL); err != nil {
		return fmt.Errorf("site.url: %w", err)
	}

	if !validDrivers[cfg.Browser.Driver] {
		return fmt.Errorf("browser.driver must be 'rod' or 'static', got %q", cfg.Browser.Driver)
	}
	if cfg.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}
	if cfg.Browser.LocatorTimeout <= 0 {
		return fmt.Errorf("browser.locator_timeout must be > 0")
	}
	if cfg.Browser.IndicatorTimeout <= 0 {
		return fmt.Errorf("browser.indicator_timeout must be > 0")
	}
	if cfg.Browser.LoginSettle < 0 || cfg.Browser.ViewSettle < 0 {
		return fmt.Errorf("browser settle delays must be >= 0")
	}
	if cfg.Browser.MaxBodySize <= 0 {
		return fmt.Errorf("browser.max_body_size must be > 0")
	}

	for i, r := range cfg.Routes {
		if r.Pattern == "" {
			return fmt.Errorf("routes[%d].pattern must not be empty", i)
		}
		if !validShapes[r.Shape] {
			return fmt.Errorf("routes[%d].shape %q is not supported (valid: admin_panel, quotes, generic)", i, r.Shape)
		}
	}

	for name, list := range cfg.Locators {
		for i, l := range list {
			if l.Expr == "" {
				return fmt.Errorf("locators.%s[%d].expr must not be empty", name, i)
			}
			if !validKinds[l.Kind] {
				return fmt.Errorf("locators.%s[%d].kind must be 'css' or 'xpath', got %q", name, i, l.Kind)
			}
		}
	}

	if len(cfg.Storage.Backends) == 0 {
		return fmt.Errorf("storage.backends must list at least one backend")
	}
	for _, b := range cfg.Storage.Backends {
		if !validBackends[b] {
			return fmt.Errorf("storage backend %q is not supported (valid: sqlite, postgres, file, mongodb)", b)
		}
		switch b {
		case "postgres":
			if cfg.Storage.PostgresDSN == "" {
				return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
			}
		case "mongodb":
			if cfg.Storage.MongoURI == "" {
				return fmt.Errorf("storage.mongo_uri is required for the mongodb backend")
			}
		case "file":
			if !validFileFormats[cfg.Storage.FileFormat] {
				return fmt.Errorf("storage.file_format must be 'json' or 'csv', got %q", cfg.Storage.FileFormat)
			}
		}
	}
	if cfg.Storage.Timeout <= 0 {
		return fmt.Errorf("storage.timeout must be > 0")
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}
	if cfg.API.RefreshTimeout <= 0 {
		return fmt.Errorf("api.refresh_timeout must be > 0")
	}

	if cfg.Scheduler.Enabled && cfg.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval must be at least 1s, got %s", cfg.Scheduler.Interval)
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for scraping.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
