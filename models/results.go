package models

// CompostEntry records what one wallet lost in a compost run
type CompostEntry struct {
	UserID        int64 `json:"user_id"`
	WalletID      int64 `json:"wallet_id"`
	BalanceBefore int64 `json:"balance_before"`
	Amount        int64 `json:"amount"`
}

// CompostResult is returned by a compost run
type CompostResult struct {
	TotalComposted  int64          `json:"total_composted"`
	WalletsAffected int            `json:"wallets_affected"`
	DryRun          bool           `json:"dry_run"`
	Entries         []CompostEntry `json:"entries,omitempty"`
	CycleLogID      int64          `json:"cycle_log_id"`
}

// Redistribution outcomes reported when nothing was moved
const (
	RedistributionDisabled        = "disabled"
	RedistributionNothingToMove   = "nothing_to_redistribute"
	RedistributionNoEligible      = "no_eligible_wallets"
	RedistributionShareRoundsZero = "share_rounds_to_zero"
)

// RedistributionResult is returned by a redistribution run. OK is false with a Reason when
// the run made no ledger writes.
type RedistributionResult struct {
	OK              bool   `json:"ok"`
	Reason          string `json:"reason,omitempty"`
	Redistributed   int64  `json:"redistributed"`
	TargetAmount    int64  `json:"target_amount"`
	EligibleWallets int    `json:"eligible_wallets"`
	PerWallet       int64  `json:"per_wallet"`
	TotalBefore     int64  `json:"total_before"`
	TotalAfter      int64  `json:"total_after"`
	CycleLogID      int64  `json:"cycle_log_id,omitempty"`
}
