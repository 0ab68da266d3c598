package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/PanelGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type memReader struct {
	total *types.TotalAccountsRecord
	subs  *types.SubscriptionRecord
	err   error
}

func (m memReader) LatestTotalAccounts(context.Context) (*types.TotalAccountsRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.total == nil {
		return nil, types.ErrNoSnapshot
	}
	return m.total, nil
}

func (m memReader) LatestSubscription(context.Context) (*types.SubscriptionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.subs == nil {
		return nil, types.ErrNoSnapshot
	}
	return m.subs, nil
}

func i64(v int64) *int64 { return &v }

func snap(total *int64, row *types.SubscriptionRow) *types.Snapshot {
	return &types.Snapshot{CapturedAt: time.Now().UTC(), TotalAccounts: total, SubscriptionRow: row}
}

func TestDetectFirstRun(t *testing.T) {
	cd := NewChangeDetector(memReader{}, testLogger)

	changes, err := cd.Detect(context.Background(), snap(i64(10), &types.SubscriptionRow{Valid: 5}))
	require.NoError(t, err)
	require.Len(t, changes, 6)
	for _, c := range changes {
		assert.Equal(t, ChangeAdded, c.Type)
		assert.Empty(t, c.OldValue)
	}
	assert.Equal(t, "total_accounts", changes[0].Field)
	assert.Equal(t, "10", changes[0].NewValue)
}

func TestDetectModified(t *testing.T) {
	prev := memReader{
		total: &types.TotalAccountsRecord{TotalAccounts: 100},
		subs:  &types.SubscriptionRecord{ValidMemberships: 80, ActiveMemberships: 60, TrialMemberships: 20, CanceledMemberships: 5, PastDueMemberships: 2},
	}
	cd := NewChangeDetector(prev, testLogger)

	changes, err := cd.Detect(context.Background(), snap(i64(103), &types.SubscriptionRow{Valid: 80, Active: 61, Trial: 19, Canceled: 5, PastDue: 2}))
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, Change{Field: "total_accounts", Type: ChangeModified, OldValue: "100", NewValue: "103", Delta: 3}, changes[0])
	assert.Equal(t, "active_memberships", changes[1].Field)
	assert.Equal(t, int64(1), changes[1].Delta)
	assert.Equal(t, "trial_memberships", changes[2].Field)
	assert.Equal(t, int64(-1), changes[2].Delta)
}

func TestDiffIgnoresUndeterminedFields(t *testing.T) {
	prevTotal := &types.TotalAccountsRecord{TotalAccounts: 100}
	prevSubs := &types.SubscriptionRecord{ValidMemberships: 80}

	assert.Empty(t, Diff(prevTotal, prevSubs, snap(nil, nil)))
	assert.Empty(t, Diff(prevTotal, prevSubs, snap(i64(100), nil)))
}

func TestDetectReadFailure(t *testing.T) {
	cd := NewChangeDetector(memReader{err: &types.StorageError{Backend: "sqlite", Op: "latest", Err: errors.New("locked")}}, testLogger)

	_, err := cd.Detect(context.Background(), snap(i64(1), nil))
	assert.True(t, types.IsStorageError(err))
}
