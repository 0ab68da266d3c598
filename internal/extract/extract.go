// Package extract reads metrics out of the current view: the metrics table,
// the total accounts scalar and the subscription "Total" row, plus the
// fixed extractions for the quotes and generic site shapes.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Labels and column names of the admin panel analytics view.
const (
	TotalAccountsLabel = "Total Accounts Created"
	PackageNameHeader  = "Package Name"
	TotalRowLabel      = "total"

	ValidHeader    = "Valid Memberships (Active + Trial)"
	ActiveHeader   = "Active Memberships"
	TrialHeader    = "Trial Memberships"
	CanceledHeader = "Canceled Memberships"
	PastDueHeader  = "Past-Due Memberships"
)

// maxParagraphs limits the generic extraction.
const maxParagraphs = 10

// Extractor reads structured data from a page.
type Extractor struct {
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New creates an Extractor. probeTimeout bounds the label lookup.
func New(probeTimeout time.Duration, logger *slog.Logger) *Extractor {
	return &Extractor{
		probeTimeout: probeTimeout,
		logger:       logger.With("component", "extract"),
	}
}

// Table extracts the first table of the view. Headers come from the
// thead row, rows from tbody; every row carries exactly one field per
// header. It returns types.ErrNoTable when the view has no table.
func (x *Extractor) Table(ctx context.Context, page browser.Page) (*types.MetricsTable, error) {
	table, err := page.Query(ctx, "table")
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrNoTable
		}
		return nil, err
	}

	headerEls, err := table.QueryAll(ctx, "thead tr th")
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	headers, err := texts(ctx, headerEls)
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}

	rowEls, err := table.QueryAll(ctx, "tbody tr")
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	out := &types.MetricsTable{Headers: headers, Rows: make([]types.TableRow, 0, len(rowEls))}
	for i, rowEl := range rowEls {
		cellEls, err := rowEl.QueryAll(ctx, "td")
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		cells, err := texts(ctx, cellEls)
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		out.Rows = append(out.Rows, types.NewTableRow(headers, cells))
	}

	x.logger.Debug("table extracted", "headers", len(headers), "rows", len(out.Rows))
	return out, nil
}

func texts(ctx context.Context, els []browser.Element) ([]string, error) {
	out := make([]string, len(els))
	for i, el := range els {
		t, err := el.Text(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = strings.TrimSpace(t)
	}
	return out, nil
}

// Quotes extracts the .quote entries of the quotes demo site.
func (x *Extractor) Quotes(ctx context.Context, page browser.Page) ([]types.Quote, error) {
	els, err := page.QueryAll(ctx, ".quote")
	if err != nil {
		return nil, err
	}

	quotes := make([]types.Quote, 0, len(els))
	for _, el := range els {
		var q types.Quote
		if q.Text, err = childText(ctx, el, ".text"); err != nil {
			return nil, err
		}
		if q.Author, err = childText(ctx, el, ".author"); err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// childText returns the text of the first descendant matching css, or ""
// when there is none.
func childText(ctx context.Context, el browser.Element, css string) (string, error) {
	child, err := el.Query(ctx, css)
	if errors.Is(err, types.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	t, err := child.Text(ctx)
	return strings.TrimSpace(t), err
}

// Generic extracts the title, all h1-h3 texts and the first non-empty
// paragraphs of a page.
func (x *Extractor) Generic(ctx context.Context, page browser.Page) (*types.PageSummary, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}
	summary := &types.PageSummary{Title: title, Headings: []string{}, Paragraphs: []string{}}

	headings, err := page.QueryAll(ctx, "h1, h2, h3")
	if err != nil {
		return nil, err
	}
	if summary.Headings, err = texts(ctx, headings); err != nil {
		return nil, err
	}

	paragraphs, err := page.QueryAll(ctx, "p")
	if err != nil {
		return nil, err
	}
	for _, p := range paragraphs {
		if len(summary.Paragraphs) == maxParagraphs {
			break
		}
		t, err := p.Text(ctx)
		if err != nil {
			return nil, err
		}
		if t = strings.TrimSpace(t); t != "" {
			summary.Paragraphs = append(summary.Paragraphs, t)
		}
	}
	return summary, nil
}
