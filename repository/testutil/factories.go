package testutil

import (
	"time"

	"grainflow/models"
)

// CreateTestTransaction creates a journal entry for a wallet
func CreateTestTransaction(walletID int64, amount int64, direction models.Direction, reason models.Reason) *models.Transaction {
	return &models.Transaction{
		WalletID:  walletID,
		Amount:    amount,
		Direction: direction,
		Reason:    reason,
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestEarn creates an EARN entry stamped at the given time
func CreateTestEarn(walletID int64, amount int64, reason models.Reason, at time.Time) *models.Transaction {
	tx := CreateTestTransaction(walletID, amount, models.DirectionEarn, reason)
	tx.CreatedAt = at
	return tx
}

// CreateTestCycleLog creates a completed cycle log of the given kind
func CreateTestCycleLog(kind models.CycleKind, startedAt time.Time) *models.CycleLog {
	return &models.CycleLog{
		Kind:             kind,
		StartedAt:        startedAt,
		FinishedAt:       startedAt.Add(2 * time.Second),
		WalletsAffected:  3,
		TotalAmountMoved: 60,
		Completed:        true,
		Summary: map[string]any{
			"rate": "0.1",
		},
	}
}

// CreateTestCycleLogWithError creates a cycle log for a run that stopped early
func CreateTestCycleLogWithError(kind models.CycleKind, startedAt time.Time, message string) *models.CycleLog {
	cycleLog := CreateTestCycleLog(kind, startedAt)
	cycleLog.Completed = false
	cycleLog.ErrorMessage = &message
	return cycleLog
}
