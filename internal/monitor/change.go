// Package monitor compares a fresh snapshot with the last persisted
// readings and reports which metrics moved.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/IshaanNene/PanelGoat/internal/types"
)

// ChangeType identifies what kind of change occurred.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
)

// Change is one metric that differs from its last persisted value.
type Change struct {
	Field    string     `json:"field"`
	Type     ChangeType `json:"type"`
	OldValue string     `json:"old_value,omitempty"`
	NewValue string     `json:"new_value"`
	Delta    int64      `json:"delta"`
}

// Reader is the read side of storage the detector needs.
type Reader interface {
	LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error)
	LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error)
}

// ChangeDetector compares snapshots against the last persisted readings.
type ChangeDetector struct {
	store  Reader
	logger *slog.Logger
}

// NewChangeDetector creates a new change detector.
func NewChangeDetector(store Reader, logger *slog.Logger) *ChangeDetector {
	return &ChangeDetector{
		store:  store,
		logger: logger.With("component", "change_detector"),
	}
}

// Detect reads the latest persisted readings and diffs snap against them.
// Call it before the snapshot is appended.
func (cd *ChangeDetector) Detect(ctx context.Context, snap *types.Snapshot) ([]Change, error) {
	total, err := cd.store.LatestTotalAccounts(ctx)
	if err != nil && !errors.Is(err, types.ErrNoSnapshot) {
		return nil, err
	}
	subs, err := cd.store.LatestSubscription(ctx)
	if err != nil && !errors.Is(err, types.ErrNoSnapshot) {
		return nil, err
	}

	changes := Diff(total, subs, snap)
	if len(changes) > 0 {
		cd.logger.Info("metrics changed", "changes", len(changes))
	} else {
		cd.logger.Debug("metrics unchanged")
	}
	return changes, nil
}

// Diff compares the present fields of snap with the previous records. A
// field missing from snap was not determined this run and is never reported
// as removed. Nil previous records mean nothing was persisted yet.
func Diff(prevTotal *types.TotalAccountsRecord, prevSubs *types.SubscriptionRecord, snap *types.Snapshot) []Change {
	var changes []Change

	if snap.TotalAccounts != nil {
		var old *int64
		if prevTotal != nil {
			old = &prevTotal.TotalAccounts
		}
		changes = appendChange(changes, "total_accounts", old, *snap.TotalAccounts)
	}

	if row := snap.SubscriptionRow; row != nil {
		fields := []struct {
			name string
			cur  int64
			prev func(*types.SubscriptionRecord) int64
		}{
			{"valid_memberships", row.Valid, func(r *types.SubscriptionRecord) int64 { return r.ValidMemberships }},
			{"active_memberships", row.Active, func(r *types.SubscriptionRecord) int64 { return r.ActiveMemberships }},
			{"trial_memberships", row.Trial, func(r *types.SubscriptionRecord) int64 { return r.TrialMemberships }},
			{"canceled_memberships", row.Canceled, func(r *types.SubscriptionRecord) int64 { return r.CanceledMemberships }},
			{"past_due_memberships", row.PastDue, func(r *types.SubscriptionRecord) int64 { return r.PastDueMemberships }},
		}
		for _, f := range fields {
			var old *int64
			if prevSubs != nil {
				v := f.prev(prevSubs)
				old = &v
			}
			changes = appendChange(changes, f.name, old, f.cur)
		}
	}
	return changes
}

func appendChange(changes []Change, field string, old *int64, cur int64) []Change {
	if old == nil {
		return append(changes, Change{
			Field:    field,
			Type:     ChangeAdded,
			NewValue: strconv.FormatInt(cur, 10),
			Delta:    cur,
		})
	}
	if *old == cur {
		return changes
	}
	return append(changes, Change{
		Field:    field,
		Type:     ChangeModified,
		OldValue: strconv.FormatInt(*old, 10),
		NewValue: strconv.FormatInt(cur, 10),
		Delta:    cur - *old,
	})
}
