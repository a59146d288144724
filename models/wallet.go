package models

import (
	"time"
)

// Wallet holds one user's grains and lifetime counters
type Wallet struct {
	ID              int64      `db:"id"`
	UserID          int64      `db:"user_id"`
	Balance         int64      `db:"balance"`
	TotalHarvested  int64      `db:"total_harvested"`
	TotalPlanted    int64      `db:"total_planted"`
	TotalComposted  int64      `db:"total_composted"`
	LastActivityAt  time.Time  `db:"last_activity_at"`
	LastCompostedAt *time.Time `db:"last_composted_at"`
	Version         int64      `db:"version"` // incremented by every balance update
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// CanSpend checks if the wallet holds at least amount grains
func (w *Wallet) CanSpend(amount int64) bool {
	return amount > 0 && w.Balance >= amount
}

// InactivityAnchor is the moment inactivity is measured from.
// A compost step restarts the clock so the same idle wallet is not drained on every run.
func (w *Wallet) InactivityAnchor() time.Time {
	if w.LastCompostedAt != nil && w.LastCompostedAt.After(w.LastActivityAt) {
		return *w.LastCompostedAt
	}
	return w.LastActivityAt
}

// IsInactive reports whether at least threshold has elapsed since the inactivity anchor
func (w *Wallet) IsInactive(now time.Time, threshold time.Duration) bool {
	return now.Sub(w.InactivityAnchor()) >= threshold
}

// View returns the read-only projection exposed to callers
func (w *Wallet) View() *BalanceView {
	return &BalanceView{
		UserID:         w.UserID,
		Balance:        w.Balance,
		TotalHarvested: w.TotalHarvested,
		TotalPlanted:   w.TotalPlanted,
		TotalComposted: w.TotalComposted,
		Version:        w.Version,
	}
}

// BalanceView is the get_balance payload. It never carries monetary fields.
type BalanceView struct {
	UserID         int64 `json:"user_id"`
	Balance        int64 `json:"balance"`
	TotalHarvested int64 `json:"total_harvested"`
	TotalPlanted   int64 `json:"total_planted"`
	TotalComposted int64 `json:"total_composted"`
	Version        int64 `json:"version"`
}

// Reconciliation compares a wallet balance with its journal
type Reconciliation struct {
	UserID     int64
	Balance    int64
	Earned     int64
	Spent      int64
	Consistent bool
}

// Drift is the difference between the stored balance and the journal total
func (r *Reconciliation) Drift() int64 {
	return r.Balance - (r.Earned - r.Spent)
}
