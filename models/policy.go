package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompostPolicy parameterises the inactivity decay
type CompostPolicy struct {
	InactivityThreshold  time.Duration
	MinimumBalance       int64
	MinimumCompostAmount int64
	Rate                 decimal.Decimal
}

// Amount computes floor(balance * rate)
func (p CompostPolicy) Amount(balance int64) int64 {
	return FloorFraction(balance, p.Rate)
}

// Eligible applies the full compost predicate to a wallet at now
func (p CompostPolicy) Eligible(w *Wallet, now time.Time) (int64, bool) {
	if !w.IsInactive(now, p.InactivityThreshold) {
		return 0, false
	}
	if w.Balance < p.MinimumBalance {
		return 0, false
	}
	amount := p.Amount(w.Balance)
	if amount < p.MinimumCompostAmount || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// RedistributionPolicy parameterises the silo redistribution
type RedistributionPolicy struct {
	Enabled         bool
	Rate            decimal.Decimal
	MinimumActivity int64
}

// HarvestPolicy holds per-reason default amounts
type HarvestPolicy struct {
	DefaultAmounts map[Reason]int64
}

// DefaultAmount returns the configured amount for a reason, if any
func (p HarvestPolicy) DefaultAmount(reason Reason) (int64, bool) {
	amount, ok := p.DefaultAmounts[reason]
	return amount, ok && amount > 0
}

// GovernancePolicy holds daily caps and the manual-adjust approval threshold
type GovernancePolicy struct {
	DailyCaps             map[Reason]int64
	ManualAdjustDailyCap  int64
	DualApprovalThreshold int64
	DailyResetHour        int
}

// DailyCap returns the cap for a reason. Zero means uncapped.
func (p GovernancePolicy) DailyCap(reason Reason) int64 {
	if reason == ReasonManualAdjust {
		return p.ManualAdjustDailyCap
	}
	return p.DailyCaps[reason]
}

// FloorFraction returns floor(amount * fraction) using exact decimal arithmetic
func FloorFraction(amount int64, fraction decimal.Decimal) int64 {
	if amount <= 0 || !fraction.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(fraction).Floor().IntPart()
}
