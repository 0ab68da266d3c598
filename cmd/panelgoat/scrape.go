package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/extract"
	"github.com/IshaanNene/PanelGoat/internal/refresh"
	"github.com/IshaanNene/PanelGoat/internal/snapshot"
	"github.com/IshaanNene/PanelGoat/internal/storage"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

var (
	persist       bool
	scrapeTimeout time.Duration
	asJSON        bool
	pageURL       string
)

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url]",
		Short: "Run one scrape and print the result",
		Long: `Run one scrape against the given URL (default: site.url). The site
shape is picked from the routes table: admin panels yield a snapshot,
quotes.toscrape.com yields quotes, anything else a title/headings summary.

With --persist the snapshot is appended to the configured storage.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrape,
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "append the snapshot to storage")
	cmd.Flags().DurationVar(&scrapeTimeout, "timeout", 5*time.Minute, "overall run timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target := cfg.Site.URL
	if len(args) > 0 {
		target = args[0]
		if err := config.ValidateURL(target); err != nil {
			return fmt.Errorf("invalid URL %q: %w", target, err)
		}
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	drv, err := browser.NewDriver(&cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("create browser driver: %w", err)
	}

	var store storage.Storage
	if persist {
		store, err = storage.New(&cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	builder := snapshot.NewBuilder(cfg, drv, logger)
	pipe := refresh.NewPipeline(builder, store, target, nil, logger)
	report, err := pipe.Run(ctx, refresh.TriggerCLI)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON && report.Result != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.Result.Snapshot); err != nil {
			return err
		}
	} else {
		report.Render(out)
	}
	return report.Err
}

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file.html>",
		Short: "Extract the metrics table from a saved page",
		Long: `Run the table extractor, the total accounts strategies and the Total
row classification on an HTML file, for example the page dumped through
site.debug_html_path. No browser or network access is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "URL the page was served from (default: file URL)")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	src := pageURL
	if src == "" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		src = "file://" + filepath.ToSlash(abs)
	}
	page, err := browser.OpenDocument(src, f, logger)
	if err != nil {
		return err
	}
	defer page.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	x := extract.New(cfg.Browser.LocatorTimeout, logger)

	tbl, err := x.Table(ctx, page)
	if err != nil && !errors.Is(err, types.ErrNoTable) {
		return err
	}
	total, source := x.TotalAccounts(ctx, page, tbl)
	row, rowErr := extract.ClassifyTotalRow(tbl)

	out := cmd.OutOrStdout()
	if tbl != nil {
		printMetricsTable(out, tbl)
	} else {
		fmt.Fprintln(out, "no table found")
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value", "Source"})
	if total != nil {
		t.AppendRow(table.Row{"total_accounts", *total, source})
	} else {
		t.AppendRow(table.Row{"total_accounts", "n/a", source})
	}
	switch {
	case rowErr != nil:
		t.AppendRow(table.Row{"subscription_row", rowErr.Error(), "table"})
	case row != nil:
		t.AppendRows([]table.Row{
			{"valid_memberships", row.Valid, "table"},
			{"active_memberships", row.Active, "table"},
			{"trial_memberships", row.Trial, "table"},
			{"canceled_memberships", row.Canceled, "table"},
			{"past_due_memberships", row.PastDue, "table"},
		})
	default:
		t.AppendRow(table.Row{"subscription_row", "n/a", "none"})
	}
	t.Render()
	return nil
}

func printMetricsTable(w io.Writer, tbl *types.MetricsTable) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(tbl.Headers))
	for i, h := range tbl.Headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, r := range tbl.Rows {
		cells := make(table.Row, len(r.Fields))
		for i, f := range r.Fields {
			cells[i] = f.Value
		}
		t.AppendRow(cells)
	}
	t.Render()
}
