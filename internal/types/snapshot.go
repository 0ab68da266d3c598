package types

import (
	"time"
)

// SubscriptionRow holds the five membership counters of the "Total" row.
type SubscriptionRow struct {
	Valid    int64 `json:"valid_memberships"    bson:"valid_memberships"`
	Active   int64 `json:"active_memberships"   bson:"active_memberships"`
	Trial    int64 `json:"trial_memberships"    bson:"trial_memberships"`
	Canceled int64 `json:"canceled_memberships" bson:"canceled_memberships"`
	PastDue  int64 `json:"past_due_memberships" bson:"past_due_memberships"`
}

// Snapshot is one point-in-time normalized reading of account and
// subscription metrics. A nil TotalAccounts means the value could not be
// determined during the run; zero is a valid reading.
type Snapshot struct {
	CapturedAt      time.Time        `json:"captured_at"                bson:"captured_at"`
	SourceURL       string           `json:"source_url,omitempty"       bson:"source_url,omitempty"`
	TotalAccounts   *int64           `json:"total_accounts"             bson:"total_accounts,omitempty"`
	SubscriptionRow *SubscriptionRow `json:"subscription_row"           bson:"subscription_row,omitempty"`
}

// IsEmpty reports whether the snapshot carries no metric at all.
func (s *Snapshot) IsEmpty() bool {
	return s.TotalAccounts == nil && s.SubscriptionRow == nil
}

// SameReading reports whether two snapshots hold identical metrics,
// ignoring the capture time.
func (s *Snapshot) SameReading(o *Snapshot) bool {
	if (s.TotalAccounts == nil) != (o.TotalAccounts == nil) {
		return false
	}
	if s.TotalAccounts != nil && *s.TotalAccounts != *o.TotalAccounts {
		return false
	}
	if (s.SubscriptionRow == nil) != (o.SubscriptionRow == nil) {
		return false
	}
	if s.SubscriptionRow != nil && *s.SubscriptionRow != *o.SubscriptionRow {
		return false
	}
	return s.SourceURL == o.SourceURL
}

// TotalAccountsRecord is the persisted shape served by GET /total_accounts.
type TotalAccountsRecord struct {
	ScrapedAt     time.Time `json:"scraped_at"     db:"scraped_at"`
	TotalAccounts int64     `json:"total_accounts" db:"total_accounts"`
}

// SubscriptionRecord is the persisted shape served by GET /premium_subscribers.
type SubscriptionRecord struct {
	ScrapedAt           time.Time `json:"scraped_at"           db:"scraped_at"`
	ValidMemberships    int64     `json:"valid_memberships"    db:"valid_memberships"`
	ActiveMemberships   int64     `json:"active_memberships"   db:"active_memberships"`
	TrialMemberships    int64     `json:"trial_memberships"    db:"trial_memberships"`
	CanceledMemberships int64     `json:"canceled_memberships" db:"canceled_memberships"`
	PastDueMemberships  int64     `json:"past_due_memberships" db:"past_due_memberships"`
}

// NewSubscriptionRecord projects a snapshot's subscription row into a record.
// It returns nil when the snapshot has no subscription row.
func NewSubscriptionRecord(s *Snapshot) *SubscriptionRecord {
	if s.SubscriptionRow == nil {
		return nil
	}
	row := s.SubscriptionRow
	return &SubscriptionRecord{
		ScrapedAt:           s.CapturedAt,
		ValidMemberships:    row.Valid,
		ActiveMemberships:   row.Active,
		TrialMemberships:    row.Trial,
		CanceledMemberships: row.Canceled,
		PastDueMemberships:  row.PastDue,
	}
}

// NewTotalAccountsRecord projects a snapshot's total into a record.
// It returns nil when the total is unknown.
func NewTotalAccountsRecord(s *Snapshot) *TotalAccountsRecord {
	if s.TotalAccounts == nil {
		return nil
	}
	return &TotalAccountsRecord{ScrapedAt: s.CapturedAt, TotalAccounts: *s.TotalAccounts}
}

// InRange reports whether t falls within [start, end]. Zero bounds are open.
func InRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
