// Package snapshot runs one scrape against the target site and turns what
// it finds into a Snapshot. Sub-step failures degrade to warnings and null
// fields; only an unavailable browser or a failed page load abort a run.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/PanelGoat/internal/auth"
	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/extract"
	"github.com/IshaanNene/PanelGoat/internal/locator"
	"github.com/IshaanNene/PanelGoat/internal/navigator"
	"github.com/IshaanNene/PanelGoat/internal/observability"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Result is everything one run observed. Snapshot is always non-nil on a
// nil error; Quotes and Summary are set only for their shapes.
type Result struct {
	RunID    string
	Shape    navigator.Shape
	Login    auth.Outcome
	Title    string
	Snapshot *types.Snapshot
	Table    *types.MetricsTable
	Quotes   []types.Quote
	Summary  *types.PageSummary
	Warnings []string
	Duration time.Duration
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Builder orchestrates login, navigation and extraction for one run.
type Builder struct {
	driver     browser.Driver
	nav        *navigator.Navigator
	auth       *auth.Authenticator
	extractor  *extract.Extractor
	router     *navigator.Router
	catalog    *locator.Catalog
	creds      auth.Credentials
	viewSettle time.Duration
	debugPath  string
	metrics    *observability.Metrics
	logger     *slog.Logger

	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithMetrics records login outcomes and extraction sources.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithClock replaces the capture clock.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder wires a Builder from configuration.
func NewBuilder(cfg *config.Config, driver browser.Driver, logger *slog.Logger, opts ...Option) *Builder {
	catalog := locator.FromConfig(cfg.Locators)
	b := &Builder{
		driver: driver,
		nav:    navigator.New(cfg.Browser.NavigationTimeout, cfg.Browser.LocatorTimeout, logger),
		auth: auth.New(catalog, auth.Timing{
			Locator:   cfg.Browser.LocatorTimeout,
			Settle:    cfg.Browser.LoginSettle,
			Indicator: cfg.Browser.IndicatorTimeout,
		}, logger),
		extractor:  extract.New(cfg.Browser.LocatorTimeout, logger),
		router:     navigator.RouterFromConfig(cfg.Routes),
		catalog:    catalog,
		creds:      auth.Credentials{Username: cfg.Site.Username, Password: cfg.Site.Password},
		viewSettle: cfg.Browser.ViewSettle,
		debugPath:  cfg.Site.DebugHTMLPath,
		logger:     logger.With("component", "snapshot"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs one scrape of url. The browser session is released on every
// path. Errors are returned only when the session cannot be acquired, the
// page cannot be loaded or ctx is done.
func (b *Builder) Build(ctx context.Context, url string) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID: uuid.NewString(),
		Shape: b.router.Match(url),
	}
	logger := b.logger.With("run_id", res.RunID, "url", url, "shape", res.Shape)
	logger.Info("scrape started", "driver", b.driver.Name())

	page, err := b.driver.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close browser session", "error", err)
		}
	}()

	if err := b.nav.Open(ctx, page, url); err != nil {
		return nil, err
	}

	res.Login, err = b.auth.Login(ctx, page, b.creds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("login failed, continuing without login", "error", err)
		res.warn("login: %v", err)
		res.Login = auth.Outcome{Status: auth.StatusIndeterminate}
	} else if ferr := res.Login.Err(); ferr != nil {
		res.warn("login: %v", ferr)
	}
	b.metrics.ObserveLogin(string(res.Login.Status))

	if err := b.extractShape(ctx, page, res, logger); err != nil {
		return nil, err
	}

	if res.Title, err = page.Title(ctx); err != nil {
		res.warn("title: %v", err)
	}

	if res.Snapshot == nil {
		res.Snapshot = &types.Snapshot{}
	}
	res.Snapshot.SourceURL = url
	res.Snapshot.CapturedAt = b.now().UTC()
	res.Duration = time.Since(start)

	b.metrics.ObserveWarnings(len(res.Warnings))
	logger.Info("scrape finished",
		"login", res.Login.String(),
		"has_total", res.Snapshot.TotalAccounts != nil,
		"has_subscriptions", res.Snapshot.SubscriptionRow != nil,
		"warnings", len(res.Warnings),
		"duration", res.Duration,
	)
	return res, nil
}

func (b *Builder) extractShape(ctx context.Context, page browser.Page, res *Result, logger *slog.Logger) error {
	var err error
	switch res.Shape {
	case navigator.ShapeAdminPanel:
		res.Snapshot, res.Table, err = b.extractPanel(ctx, page, res, logger)
	case navigator.ShapeQuotes:
		if res.Quotes, err = b.extractor.Quotes(ctx, page); err != nil {
			res.warn("quotes: %v", err)
		}
	default:
		if res.Summary, err = b.extractor.Generic(ctx, page); err != nil {
			res.warn("generic: %v", err)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// extractPanel enters the analytics view and reads the metrics from it.
// Only cancellation is returned as an error.
func (b *Builder) extractPanel(ctx context.Context, page browser.Page, res *Result, logger *slog.Logger) (*types.Snapshot, *types.MetricsTable, error) {
	snap := &types.Snapshot{}

	entered, err := b.nav.EnterView(ctx, page, b.catalog.Analytics, b.viewSettle)
	switch {
	case ctx.Err() != nil:
		return nil, nil, ctx.Err()
	case err != nil:
		res.warn("analytics view: %v", err)
	case !entered:
		res.warn("analytics view: control not found, extracting from current page")
	}

	b.dumpHTML(ctx, page, logger)

	table, err := b.extractor.Table(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		res.warn("table: %v", err)
		table = nil
	}

	total, source := b.extractor.TotalAccounts(ctx, page, table)
	snap.TotalAccounts = total
	b.metrics.ObserveExtraction("total_accounts", string(source))
	if total == nil {
		res.warn("total accounts: %v", &types.ExtractionError{Field: "total_accounts", Err: types.ErrNotFound})
	}

	row, err := extract.ClassifyTotalRow(table)
	switch {
	case err != nil:
		res.warn("subscriptions: %v", err)
		b.metrics.ObserveExtraction("subscription_row", "invalid")
	case row == nil:
		if table != nil {
			res.warn("subscriptions: no total row in table")
		}
		b.metrics.ObserveExtraction("subscription_row", string(extract.SourceNone))
	default:
		snap.SubscriptionRow = row
		b.metrics.ObserveExtraction("subscription_row", string(extract.SourceTable))
	}

	return snap, table, nil
}

// dumpHTML writes the current document to the debug path when configured.
func (b *Builder) dumpHTML(ctx context.Context, page browser.Page, logger *slog.Logger) {
	if b.debugPath == "" {
		return
	}
	html, err := page.HTML(ctx)
	if err == nil {
		if dir := filepath.Dir(b.debugPath); dir != "." {
			err = os.MkdirAll(dir, 0o755)
		}
	}
	if err == nil {
		err = os.WriteFile(b.debugPath, []byte(html), 0o644)
	}
	if err != nil {
		logger.Warn("failed to save debug HTML", "path", b.debugPath, "error", err)
		return
	}
	logger.Debug("saved view HTML", "path", b.debugPath)
}
