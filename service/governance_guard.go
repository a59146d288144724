package service

import (
	"context"
	"fmt"
	"time"

	"grainflow/models"

	log "github.com/sirupsen/logrus"
)

// GovernanceGuard enforces per-reason daily caps and the dual-approval threshold on
// manual adjustments. There is no privileged bypass.
//
// Amounts above the threshold are refused outright. No second-approver workflow exists
// yet, so such credits cannot be issued through the engine at all.
type GovernanceGuard struct {
	policy models.GovernancePolicy
}

// NewGovernanceGuard creates a guard for the given policy
func NewGovernanceGuard(policy models.GovernancePolicy) *GovernanceGuard {
	return &GovernanceGuard{policy: policy}
}

// Policy returns the limits the guard enforces
func (g *GovernanceGuard) Policy() models.GovernancePolicy {
	return g.policy
}

// CheckRequest applies the checks that need no ledger state. It runs before the daily cap
// so an oversized manual request reports DualApprovalRequired even if it also breaches the cap.
func (g *GovernanceGuard) CheckRequest(reason models.Reason, amount int64) error {
	if reason.IsManual() && amount > g.policy.DualApprovalThreshold {
		return &RuleViolation{
			Kind:      ViolationDualApprovalRequired,
			Reason:    reason,
			Message:   fmt.Sprintf("manual adjustment of %d exceeds the single-approver threshold of %d", amount, g.policy.DualApprovalThreshold),
			Limit:     g.policy.DualApprovalThreshold,
			Attempted: amount,
		}
	}
	return nil
}

// CheckDailyCap verifies that amount keeps the wallet's earnings for reason within the
// current period's cap. journal must belong to the unit of work holding the wallet lock.
func (g *GovernanceGuard) CheckDailyCap(ctx context.Context, journal TransactionRepository, walletID int64, reason models.Reason, amount int64, now time.Time) error {
	limit := g.policy.DailyCap(reason)
	if limit <= 0 {
		return nil
	}

	since := GetCurrentPeriodStart(now, g.policy.DailyResetHour)
	earned, err := journal.SumEarnedSince(ctx, walletID, reason, since)
	if err != nil {
		return systemError("sum daily earnings", err)
	}

	attempted := earned + amount
	if attempted > limit {
		log.WithFields(log.Fields{
			"walletID":  walletID,
			"reason":    reason,
			"limit":     limit,
			"attempted": attempted,
		}).Debug("Daily cap reached")
		return &RuleViolation{
			Kind:      ViolationDailyLimitExceeded,
			Reason:    reason,
			Message:   fmt.Sprintf("daily %s limit is %d, attempted total %d (resets at %s)", reason, limit, attempted, GetNextResetTime(now, g.policy.DailyResetHour).Format(time.RFC3339)),
			Limit:     limit,
			Attempted: attempted,
		}
	}

	return nil
}
