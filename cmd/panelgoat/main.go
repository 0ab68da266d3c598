package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/PanelGoat/internal/config"
)

var (
	cfgFile string
	verbose bool
	driver  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "panelgoat",
		Short: "PanelGoat — admin panel metrics scraper",
		Long: `PanelGoat logs into a web admin panel, reads the account and
subscription metrics from its analytics view, stores every snapshot and
serves the latest one over a small HTTP API.

Commands:
  serve     run the read API and the periodic refresh
  scrape    run one scrape and print what was found
  extract   run the table extractor on a saved HTML page`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "browser driver override: rod, static")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if driver != "" {
		cfg.Browser.Driver = strings.ToLower(driver)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PanelGoat %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			if err := config.Validate(cfg); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n⚠️  %v\n", err)
			}
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	password := ""
	if cfg.Site.Password != "" {
		password = "********"
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Section", "Key", "Value"})
	t.AppendRows([]table.Row{
		{"site", "url", cfg.Site.URL},
		{"site", "username", cfg.Site.Username},
		{"site", "password", password},
		{"site", "debug_html_path", cfg.Site.DebugHTMLPath},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"browser", "driver", cfg.Browser.Driver},
		{"browser", "headless", cfg.Browser.Headless},
		{"browser", "stealth", cfg.Browser.Stealth},
		{"browser", "navigation_timeout", cfg.Browser.NavigationTimeout},
		{"browser", "locator_timeout", cfg.Browser.LocatorTimeout},
		{"browser", "login_settle", cfg.Browser.LoginSettle},
		{"browser", "view_settle", cfg.Browser.ViewSettle},
	})
	t.AppendSeparator()
	for _, r := range cfg.Routes {
		t.AppendRow(table.Row{"routes", r.Pattern, r.Shape})
	}
	for name, list := range cfg.Locators {
		t.AppendRow(table.Row{"locators", name, fmt.Sprintf("%d configured", len(list))})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"storage", "backends", strings.Join(cfg.Storage.Backends, ", ")},
		{"storage", "sqlite_path", cfg.Storage.SQLitePath},
		{"storage", "file_dir", cfg.Storage.FileDir + " (" + cfg.Storage.FileFormat + ")"},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"api", "addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)},
		{"api", "refresh_timeout", cfg.API.RefreshTimeout},
		{"scheduler", "enabled", cfg.Scheduler.Enabled},
		{"scheduler", "interval", cfg.Scheduler.Interval},
		{"logging", "level", cfg.Logging.Level},
		{"metrics", "enabled", cfg.Metrics.Enabled},
		{"metrics", "path", cfg.Metrics.Path},
	})
	t.Render()
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closeFn, nil
}
