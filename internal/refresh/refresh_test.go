package refresh

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/PanelGoat/internal/auth"
	"github.com/IshaanNene/PanelGoat/internal/navigator"
	"github.com/IshaanNene/PanelGoat/internal/observability"
	"github.com/IshaanNene/PanelGoat/internal/snapshot"
	"github.com/IshaanNene/PanelGoat/internal/storage"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeBuilder struct {
	mu      sync.Mutex
	calls   int
	result  func() (*snapshot.Result, error)
	gate    chan struct{}
	entered chan struct{}
}

func (b *fakeBuilder) Build(ctx context.Context, url string) (*snapshot.Result, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.result()
}

func (b *fakeBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func i64(v int64) *int64 { return &v }

func panelResult() (*snapshot.Result, error) {
	return &snapshot.Result{
		RunID: "run-1",
		Shape: navigator.ShapeAdminPanel,
		Login: auth.Outcome{Status: auth.StatusSuccess},
		Title: "Admin",
		Snapshot: &types.Snapshot{
			CapturedAt:      time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
			SourceURL:       "https://admin.example/home",
			TotalAccounts:   i64(100),
			SubscriptionRow: &types.SubscriptionRow{Valid: 80, Active: 70, Trial: 5, Canceled: 3, PastDue: 2},
		},
		Warnings: []string{"login indicator not seen"},
	}, nil
}

type failingStore struct{ storage.Storage }

func (failingStore) Append(context.Context, *types.Snapshot) error {
	return &types.StorageError{Backend: "fake", Op: "append", Err: errors.New("disk full")}
}

func (failingStore) LatestTotalAccounts(context.Context) (*types.TotalAccountsRecord, error) {
	return nil, types.ErrNoSnapshot
}

func (failingStore) LatestSubscription(context.Context) (*types.SubscriptionRecord, error) {
	return nil, types.ErrNoSnapshot
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewFileStorage(t.TempDir(), "json", testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunPersistsPanelSnapshot(t *testing.T) {
	store := newStore(t)
	m := observability.NewMetrics(testLogger)
	p := NewPipeline(&fakeBuilder{result: panelResult}, store, "https://admin.example/home", m, testLogger)

	report, err := p.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, "run-1", report.RunID)
	assert.True(t, report.Persisted)

	total, err := store.LatestTotalAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), total.TotalAccounts)

	require.Len(t, report.Changes, 6)
	assert.Equal(t, "total_accounts", report.Changes[0].Field)

	out := report.Output()
	assert.Contains(t, out, "Total accounts")
	assert.Contains(t, out, "CHANGED")
	assert.Contains(t, out, "Past-due memberships")
	assert.Contains(t, out, "login indicator not seen")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(TriggerManual, StatusSuccess)))
}

func TestRunReportsOnlyMovedMetrics(t *testing.T) {
	store := newStore(t)
	p := NewPipeline(&fakeBuilder{result: panelResult}, store, "u", nil, testLogger)

	_, err := p.Run(context.Background(), TriggerManual)
	require.NoError(t, err)

	next := func() (*snapshot.Result, error) {
		res, _ := panelResult()
		res.RunID = "run-2"
		res.Snapshot.CapturedAt = res.Snapshot.CapturedAt.Add(time.Hour)
		res.Snapshot.TotalAccounts = i64(104)
		return res, nil
	}
	p.builder = &fakeBuilder{result: next}

	report, err := p.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, int64(4), report.Changes[0].Delta)
	assert.Contains(t, report.Output(), "+4")
}

func TestRunDoesNotPersistOtherShapes(t *testing.T) {
	store := newStore(t)
	build := func() (*snapshot.Result, error) {
		return &snapshot.Result{
			RunID:    "run-q",
			Shape:    navigator.ShapeQuotes,
			Snapshot: &types.Snapshot{CapturedAt: time.Now().UTC()},
			Quotes:   []types.Quote{{Text: "Be yourself.", Author: "Oscar Wilde"}},
		}, nil
	}
	p := NewPipeline(&fakeBuilder{result: build}, store, "https://quotes.toscrape.com", nil, testLogger)

	report, err := p.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.False(t, report.Persisted)
	assert.Contains(t, report.Output(), "Oscar Wilde")

	_, err = store.LatestTotalAccounts(context.Background())
	assert.ErrorIs(t, err, types.ErrNoSnapshot)
}

func TestRunEmptySnapshotNotPersisted(t *testing.T) {
	build := func() (*snapshot.Result, error) {
		return &snapshot.Result{Shape: navigator.ShapeAdminPanel, Snapshot: &types.Snapshot{}}, nil
	}
	p := NewPipeline(&fakeBuilder{result: build}, failingStore{}, "u", nil, testLogger)

	report, err := p.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.False(t, report.Persisted)
	assert.Contains(t, report.Output(), "n/a")
}

func TestRunBuildFailure(t *testing.T) {
	build := func() (*snapshot.Result, error) {
		return nil, &types.NavigationError{URL: "https://admin.example/home", Err: errors.New("connection refused")}
	}
	m := observability.NewMetrics(testLogger)
	p := NewPipeline(&fakeBuilder{result: build}, newStore(t), "https://admin.example/home", m, testLogger)

	report, err := p.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusError, report.Status)
	assert.Contains(t, report.Output(), "connection refused")
	assert.Contains(t, report.Summary(), "failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(TriggerManual, StatusError)))
}

func TestRunStorageFailure(t *testing.T) {
	m := observability.NewMetrics(testLogger)
	p := NewPipeline(&fakeBuilder{result: panelResult}, failingStore{}, "u", m, testLogger)

	report, err := p.Run(context.Background(), TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, StatusError, report.Status)
	assert.True(t, types.IsStorageError(report.Err))
	assert.False(t, report.Persisted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrors.WithLabelValues("fake", "append")))
}

func TestTryRunWhileBusy(t *testing.T) {
	b := &fakeBuilder{result: panelResult, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := NewPipeline(b, nil, "u", nil, testLogger)

	done := make(chan *Report)
	go func() {
		r, _ := p.Run(context.Background(), TriggerManual)
		done <- r
	}()
	<-b.entered
	assert.True(t, p.Busy())

	_, err := p.TryRun(context.Background(), TriggerScheduled)
	assert.ErrorIs(t, err, types.ErrRunInProgress)

	close(b.gate)
	r := <-done
	assert.Equal(t, StatusSuccess, r.Status)
	assert.False(t, p.Busy())
	assert.Equal(t, 1, b.Calls())
}

func TestRunWaitsForRunningScrape(t *testing.T) {
	b := &fakeBuilder{result: panelResult, gate: make(chan struct{}), entered: make(chan struct{}, 2)}
	p := NewPipeline(b, nil, "u", nil, testLogger)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := p.Run(context.Background(), TriggerManual)
			if err == nil && r.Status == StatusSuccess {
				succeeded.Add(1)
			}
		}()
	}

	<-b.entered
	select {
	case <-b.entered:
		t.Fatal("second run started while the first was executing")
	case <-time.After(50 * time.Millisecond):
	}

	b.gate <- struct{}{}
	<-b.entered
	b.gate <- struct{}{}
	wg.Wait()

	assert.Equal(t, int32(2), succeeded.Load())
	assert.Equal(t, 2, b.Calls())
}

func TestRunWaitBoundedByContext(t *testing.T) {
	b := &fakeBuilder{result: panelResult, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := NewPipeline(b, nil, "u", nil, testLogger)

	go p.Run(context.Background(), TriggerManual)
	<-b.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Run(ctx, TriggerManual)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(b.gate)
}

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) TryRun(ctx context.Context, trigger string) (*Report, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &Report{RunID: "r", Trigger: trigger, Status: StatusSuccess}, nil
}

func TestSchedulerRunOnStart(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, time.Hour, true, testLogger)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Next(), time.Minute)
	s.Stop()
}

func TestSchedulerFiresOnInterval(t *testing.T) {
	r := &countingRunner{err: types.ErrRunInProgress}
	s := NewScheduler(r, time.Second, false, testLogger)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsInterval(t *testing.T) {
	s := NewScheduler(&countingRunner{}, 0, false, testLogger)
	assert.Error(t, s.Start(context.Background()))
}

func TestSchedulerSkipsAfterCancel(t *testing.T) {
	r := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(r, time.Hour, false, testLogger)
	require.NoError(t, s.Start(ctx))
	cancel()

	s.tick()
	assert.Equal(t, int32(0), r.calls.Load())
	s.Stop()
}
