package refresh

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/IshaanNene/PanelGoat/internal/monitor"
	"github.com/IshaanNene/PanelGoat/internal/navigator"
	"github.com/IshaanNene/PanelGoat/internal/snapshot"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Report describes one finished run.
type Report struct {
	RunID     string
	Trigger   string
	Status    string
	StartedAt time.Time
	Duration  time.Duration
	Persisted bool
	Changes   []monitor.Change
	Result    *snapshot.Result
	Err       error
}

// Output renders the report as plain text tables.
func (r *Report) Output() string {
	var b strings.Builder
	r.Render(&b)
	return b.String()
}

// Render writes the report tables to w.
func (r *Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Refresh " + r.RunID)
	t.AppendRow(table.Row{"Trigger", r.Trigger})
	t.AppendRow(table.Row{"Status", r.Status})
	t.AppendRow(table.Row{"Started", r.StartedAt.Format(time.RFC3339)})
	t.AppendRow(table.Row{"Duration", r.Duration.Round(time.Millisecond)})
	if r.Err != nil {
		t.AppendRow(table.Row{"Error", r.Err.Error()})
	}
	if res := r.Result; res != nil {
		t.AppendRow(table.Row{"Shape", res.Shape})
		t.AppendRow(table.Row{"Login", res.Login.String()})
		t.AppendRow(table.Row{"Title", res.Title})
		t.AppendRow(table.Row{"Persisted", r.Persisted})
	}
	t.Render()

	res := r.Result
	if res == nil {
		return
	}
	switch res.Shape {
	case navigator.ShapeAdminPanel:
		renderMetrics(w, res)
		renderChanges(w, r.Changes)
	case navigator.ShapeQuotes:
		renderQuotes(w, res)
	default:
		renderSummary(w, res)
	}
	if len(res.Warnings) > 0 {
		wt := table.NewWriter()
		wt.SetOutputMirror(w)
		wt.SetStyle(table.StyleRounded)
		wt.AppendHeader(table.Row{"#", "Warning"})
		for i, msg := range res.Warnings {
			wt.AppendRow(table.Row{i + 1, msg})
		}
		wt.Render()
	}
}

func renderMetrics(w io.Writer, res *snapshot.Result) {
	snap := res.Snapshot
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	t.AppendRow(table.Row{"Total accounts", optional(snap.TotalAccounts)})
	if row := snap.SubscriptionRow; row != nil {
		t.AppendRows([]table.Row{
			{"Valid memberships", row.Valid},
			{"Active memberships", row.Active},
			{"Trial memberships", row.Trial},
			{"Canceled memberships", row.Canceled},
			{"Past-due memberships", row.PastDue},
		})
	} else {
		t.AppendRow(table.Row{"Subscription row", "n/a"})
	}
	t.Render()
}

func renderChanges(w io.Writer, changes []monitor.Change) {
	if len(changes) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Changed", "Was", "Now", "Delta"})
	for _, c := range changes {
		old := c.OldValue
		if c.Type == monitor.ChangeAdded {
			old = "-"
		}
		t.AppendRow(table.Row{c.Field, old, c.NewValue, fmt.Sprintf("%+d", c.Delta)})
	}
	t.Render()
}

func renderQuotes(w io.Writer, res *snapshot.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Quote", "Author"})
	for i, q := range res.Quotes {
		t.AppendRow(table.Row{i + 1, text.Trim(q.Text, 80), q.Author})
	}
	t.AppendFooter(table.Row{"", "Total", len(res.Quotes)})
	t.Render()
}

func renderSummary(w io.Writer, res *snapshot.Result) {
	if res.Summary == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Kind", "Text"})
	for _, h := range res.Summary.Headings {
		t.AppendRow(table.Row{"heading", text.Trim(h, 80)})
	}
	for _, p := range res.Summary.Paragraphs {
		t.AppendRow(table.Row{"paragraph", text.Trim(p, 80)})
	}
	t.Render()
}

func optional(v *int64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatInt(*v, 10)
}

// Summary is a one-line description of the report for logs and CLI output.
func (r *Report) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("%s run %s failed: %v", r.Trigger, r.RunID, r.Err)
	}
	return fmt.Sprintf("%s run %s succeeded in %s (persisted=%t)", r.Trigger, r.RunID, r.Duration.Round(time.Millisecond), r.Persisted)
}
