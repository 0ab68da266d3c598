// Package refresh runs the scrape-and-persist cycle, on demand and on a
// fixed schedule, never more than one at a time.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/monitor"
	"github.com/IshaanNene/PanelGoat/internal/navigator"
	"github.com/IshaanNene/PanelGoat/internal/observability"
	"github.com/IshaanNene/PanelGoat/internal/snapshot"
	"github.com/IshaanNene/PanelGoat/internal/storage"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Triggers label what started a run.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerCLI       = "cli"
)

// Builder produces one scrape result.
type Builder interface {
	Build(ctx context.Context, url string) (*snapshot.Result, error)
}

// Pipeline builds a snapshot and appends it to storage. Runs are serialized
// by a single slot: Run waits for it, TryRun gives up when it is taken.
type Pipeline struct {
	builder Builder
	store   storage.Storage
	changes *monitor.ChangeDetector
	url     string
	slot    chan struct{}
	metrics *observability.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// NewPipeline creates a pipeline scraping url. store may be nil, in which
// case runs are not persisted.
func NewPipeline(builder Builder, store storage.Storage, url string, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	var changes *monitor.ChangeDetector
	if store != nil {
		changes = monitor.NewChangeDetector(store, logger)
	}
	return &Pipeline{
		builder: builder,
		store:   store,
		changes: changes,
		url:     url,
		slot:    make(chan struct{}, 1),
		metrics: metrics,
		logger:  logger.With("component", "refresh"),
		now:     time.Now,
	}
}

// Run waits until no other run is executing, then runs. Waiting is bounded
// by ctx.
func (p *Pipeline) Run(ctx context.Context, trigger string) (*Report, error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for running scrape: %w", ctx.Err())
	}
	defer func() { <-p.slot }()
	return p.run(ctx, trigger), nil
}

// TryRun runs only when no other run is executing and otherwise returns
// types.ErrRunInProgress.
func (p *Pipeline) TryRun(ctx context.Context, trigger string) (*Report, error) {
	select {
	case p.slot <- struct{}{}:
	default:
		return nil, types.ErrRunInProgress
	}
	defer func() { <-p.slot }()
	return p.run(ctx, trigger), nil
}

// Busy reports whether a run is executing.
func (p *Pipeline) Busy() bool {
	return len(p.slot) > 0
}

func (p *Pipeline) run(ctx context.Context, trigger string) *Report {
	done := p.metrics.RunStarted(trigger)
	report := &Report{Trigger: trigger, StartedAt: p.now().UTC()}

	res, err := p.builder.Build(ctx, p.url)
	if err == nil {
		report.Result = res
		report.RunID = res.RunID
		report.Persisted, err = p.persist(ctx, res, report)
	}
	report.Duration = p.now().Sub(report.StartedAt)

	if err != nil {
		report.Status = StatusError
		report.Err = err
		p.logger.Error("refresh failed", "trigger", trigger, "run_id", report.RunID, "error", err)
	} else {
		report.Status = StatusSuccess
		p.logger.Info("refresh completed",
			"trigger", trigger,
			"run_id", report.RunID,
			"persisted", report.Persisted,
			"duration", report.Duration,
		)
	}
	done(report.Status)
	return report
}

// persist appends admin panel snapshots. Other shapes carry no metrics.
func (p *Pipeline) persist(ctx context.Context, res *snapshot.Result, report *Report) (bool, error) {
	if p.store == nil || res.Shape != navigator.ShapeAdminPanel {
		return false, nil
	}
	if res.Snapshot.IsEmpty() {
		p.logger.Warn("snapshot has no metrics, nothing persisted", "run_id", res.RunID)
		return false, nil
	}

	changes, err := p.changes.Detect(ctx, res.Snapshot)
	if err != nil {
		p.logger.Warn("change detection skipped", "run_id", res.RunID, "error", err)
	}
	report.Changes = changes

	if err := p.store.Append(ctx, res.Snapshot); err != nil {
		var se *types.StorageError
		if errors.As(err, &se) {
			p.metrics.ObserveStorageError(se.Backend, se.Op)
		}
		return false, err
	}
	return true, nil
}
