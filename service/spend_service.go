package service

import (
	"context"
	"fmt"
	"time"

	"grainflow/models"

	log "github.com/sirupsen/logrus"
)

// spendService implements the SpendService interface
type spendService struct {
	uowFactory UnitOfWorkFactory
	now        func() time.Time
}

// NewSpendService creates a new spend service
func NewSpendService(uowFactory UnitOfWorkFactory) SpendService {
	return &spendService{
		uowFactory: uowFactory,
		now:        time.Now,
	}
}

// Spend debits a wallet. It never partially debits: the whole amount is planted or nothing is.
func (s *spendService) Spend(ctx context.Context, userID int64, amount int64, reason models.Reason) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, s.reject(userID, amount, reason, &RuleViolation{
			Kind:      ViolationInvalidAmount,
			Reason:    reason,
			Message:   "spend amount must be positive",
			Attempted: amount,
		})
	}
	if !reason.IsSpendable() {
		return nil, s.reject(userID, amount, reason, &RuleViolation{
			Kind:    ViolationInvalidReason,
			Reason:  reason,
			Message: fmt.Sprintf("%q is not a spend reason", reason),
		})
	}

	now := s.now().UTC()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin spend", err)
	}
	defer uow.Rollback()

	wallet, _, err := uow.WalletRepository().GetOrCreateForUpdate(ctx, userID)
	if err != nil {
		return nil, systemError("lock wallet", err)
	}

	insufficient := &RuleViolation{
		Kind:      ViolationInsufficientBalance,
		Reason:    reason,
		Message:   fmt.Sprintf("balance %d does not cover %d", wallet.Balance, amount),
		Limit:     wallet.Balance,
		Attempted: amount,
	}
	if !wallet.CanSpend(amount) {
		return nil, s.reject(userID, amount, reason, insufficient)
	}

	updated, err := uow.WalletRepository().ApplySpend(ctx, wallet.ID, amount, now)
	if err != nil {
		return nil, systemError("debit wallet", err)
	}
	if updated == nil {
		return nil, s.reject(userID, amount, reason, insufficient)
	}

	tx := &models.Transaction{
		Amount:    amount,
		Direction: models.DirectionSpend,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := RecordBalanceChange(ctx, uow, wallet, updated, tx); err != nil {
		return nil, systemError("record spend", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, systemError("commit spend", err)
	}

	log.WithFields(log.Fields{
		"userID":     userID,
		"reason":     reason,
		"amount":     amount,
		"newBalance": updated.Balance,
	}).Info("Spend recorded")

	return tx, nil
}

func (s *spendService) reject(userID, amount int64, reason models.Reason, err error) error {
	log.WithFields(log.Fields{
		"userID": userID,
		"reason": reason,
		"amount": amount,
		"error":  err,
	}).Warn("Spend rejected")
	return err
}
