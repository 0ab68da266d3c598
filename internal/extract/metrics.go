package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Source names the strategy that produced a scalar reading.
type Source string

const (
	SourceLabel Source = "label"
	SourceTable Source = "table"
	SourceNone  Source = "none"
)

// totalStrategy returns the total accounts reading, or nil to fall through.
type totalStrategy struct {
	source Source
	read   func(ctx context.Context, page browser.Page, table *types.MetricsTable) *int64
}

// TotalAccounts reads the total accounts scalar. Strategies run in order and
// the first non-nil reading wins: the value next to the "Total Accounts
// Created" label, then the Valid Memberships cell of the table's Total row.
// A nil result means the total could not be determined.
func (x *Extractor) TotalAccounts(ctx context.Context, page browser.Page, table *types.MetricsTable) (*int64, Source) {
	strategies := []totalStrategy{
		{source: SourceLabel, read: x.totalFromLabel},
		{source: SourceTable, read: x.totalFromTable},
	}
	for _, s := range strategies {
		if v := s.read(ctx, page, table); v != nil {
			x.logger.Debug("total accounts extracted", "source", s.source, "value", *v)
			return v, s.source
		}
	}
	x.logger.Warn("total accounts not found")
	return nil, SourceNone
}

// totalFromLabel accepts the label's next sibling only when its trimmed text
// is made of decimal digits alone.
func (x *Extractor) totalFromLabel(ctx context.Context, page browser.Page, _ *types.MetricsTable) *int64 {
	probeCtx, cancel := context.WithTimeout(ctx, x.probeTimeout)
	defer cancel()

	label, err := page.WaitFor(probeCtx, browser.XPath(fmt.Sprintf(`//span[normalize-space(.)=%q]`, TotalAccountsLabel)))
	if err != nil {
		return nil
	}
	text, ok, err := label.NextSiblingText(ctx)
	if err != nil || !ok {
		return nil
	}

	text = strings.TrimSpace(text)
	if !isDigits(text) {
		x.logger.Debug("total accounts label value rejected", "value", text)
		return nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// totalFromTable reads the Valid Memberships cell of the Total row. Rows too
// short to reach the column are skipped and the last Total row that reaches
// it wins.
func (x *Extractor) totalFromTable(_ context.Context, _ browser.Page, table *types.MetricsTable) *int64 {
	if table == nil {
		return nil
	}
	col := table.HeaderIndex(ValidHeader)
	if col < 0 {
		return nil
	}
	raw, found := "", false
	for _, row := range table.Rows {
		if len(row.Cells) == 0 || !isTotalLabel(row.Cells[0]) || col >= len(row.Cells) {
			continue
		}
		raw, found = row.Cells[col], true
	}
	if !found || strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := parseCount(raw)
	if err != nil {
		x.logger.Debug("total accounts table value rejected", "value", raw)
		return nil
	}
	return &v
}

// ClassifyTotalRow selects the first row whose Package Name is "total"
// (ignoring case and surrounding space) and projects it onto the five
// membership counters. Missing or empty counters are 0. It returns nil, nil
// when no row matches and an *types.ExtractionError when a counter is not a
// number.
func ClassifyTotalRow(table *types.MetricsTable) (*types.SubscriptionRow, error) {
	if table == nil {
		return nil, nil
	}
	for _, row := range table.Rows {
		name, ok := row.Get(PackageNameHeader)
		if !ok || !isTotalLabel(name) {
			continue
		}

		var out types.SubscriptionRow
		fields := []struct {
			header string
			dst    *int64
		}{
			{ValidHeader, &out.Valid},
			{ActiveHeader, &out.Active},
			{TrialHeader, &out.Trial},
			{CanceledHeader, &out.Canceled},
			{PastDueHeader, &out.PastDue},
		}
		for _, f := range fields {
			raw, _ := row.Get(f.header)
			v, err := parseCount(raw)
			if err != nil {
				return nil, &types.ExtractionError{Field: f.header, Err: err}
			}
			*f.dst = v
		}
		return &out, nil
	}
	return nil, nil
}

func isTotalLabel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), TotalRowLabel)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var errNotNumeric = errors.New("not a number")

// parseCount parses a table counter. Empty means 0 and thousands
// separators are ignored.
func parseCount(raw string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, nil
	}
	if !isDigits(s) {
		return 0, fmt.Errorf("%w: %q", errNotNumeric, raw)
	}
	return strconv.ParseInt(s, 10, 64)
}
