package service

import (
	"context"
	"fmt"

	"grainflow/events"
	"grainflow/models"
)

// RecordBalanceChange appends the journal entry for a wallet update and queues the
// balance change event. Every balance mutation goes through here.
func RecordBalanceChange(ctx context.Context, uow UnitOfWork, before, after *models.Wallet, tx *models.Transaction) error {
	tx.WalletID = after.ID
	if err := uow.TransactionRepository().Append(ctx, tx); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	uow.EventBus().Publish(events.WalletBalanceChangedEvent{
		UserID:        after.UserID,
		WalletID:      after.ID,
		TransactionID: tx.ID,
		OldBalance:    before.Balance,
		NewBalance:    after.Balance,
		Amount:        tx.Amount,
		Direction:     tx.Direction,
		Reason:        tx.Reason,
		Snapshot:      *after.View(),
	})

	return nil
}
