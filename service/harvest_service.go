package service

import (
	"context"
	"fmt"
	"time"

	"grainflow/events"
	"grainflow/models"

	log "github.com/sirupsen/logrus"
)

// harvestService implements the HarvestService interface
type harvestService struct {
	uowFactory UnitOfWorkFactory
	policy     models.HarvestPolicy
	guard      *GovernanceGuard
	throttle   HarvestThrottle
	now        func() time.Time
}

// NewHarvestService creates a new harvest service. throttle may be nil.
func NewHarvestService(uowFactory UnitOfWorkFactory, policy models.HarvestPolicy, guard *GovernanceGuard, throttle HarvestThrottle) HarvestService {
	return &harvestService{
		uowFactory: uowFactory,
		policy:     policy,
		guard:      guard,
		throttle:   throttle,
		now:        time.Now,
	}
}

// Harvest credits a wallet for a recognised reason
func (s *harvestService) Harvest(ctx context.Context, req HarvestRequest) (*models.Transaction, error) {
	amount, err := s.resolveAmount(req)
	if err != nil {
		return nil, s.reject(req, err)
	}

	if err := s.guard.CheckRequest(req.Reason, amount); err != nil {
		return nil, s.reject(req, err)
	}

	now := s.now().UTC()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin harvest", err)
	}
	defer uow.Rollback()

	wallet, created, err := uow.WalletRepository().GetOrCreateForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, systemError("lock wallet", err)
	}

	if err := s.guard.CheckDailyCap(ctx, uow.TransactionRepository(), wallet.ID, req.Reason, amount, now); err != nil {
		if _, ok := AsRuleViolation(err); ok {
			return nil, s.reject(req, err)
		}
		return nil, err
	}

	// Manual adjustments are bounded by governance, not by the activity throttle.
	// A token is spent only by requests that passed every rule; a later storage failure still spends it.
	if !req.Reason.IsManual() && s.throttle != nil && !s.throttle.Allow(req.UserID, req.Reason) {
		return nil, s.reject(req, &RuleViolation{
			Kind:    ViolationHarvestThrottled,
			Reason:  req.Reason,
			Message: fmt.Sprintf("too many %s harvests, try again later", req.Reason),
		})
	}

	updated, err := uow.WalletRepository().ApplyHarvest(ctx, wallet.ID, amount, now)
	if err != nil {
		return nil, systemError("credit wallet", err)
	}

	tx := &models.Transaction{
		Amount:    amount,
		Direction: models.DirectionEarn,
		Reason:    req.Reason,
		Metadata:  req.Metadata,
		CreatedAt: now,
	}
	if err := RecordBalanceChange(ctx, uow, wallet, updated, tx); err != nil {
		return nil, systemError("record harvest", err)
	}

	if created {
		uow.EventBus().Publish(events.WalletCreatedEvent{UserID: updated.UserID, WalletID: updated.ID})
	}

	if err := uow.Commit(); err != nil {
		return nil, systemError("commit harvest", err)
	}

	log.WithFields(log.Fields{
		"userID":     req.UserID,
		"reason":     req.Reason,
		"amount":     amount,
		"newBalance": updated.Balance,
	}).Info("Harvest recorded")

	return tx, nil
}

// resolveAmount validates the reason and applies the per-reason default
func (s *harvestService) resolveAmount(req HarvestRequest) (int64, error) {
	if !req.Reason.IsValid() || !req.Reason.IsHarvestable() {
		return 0, &RuleViolation{
			Kind:    ViolationInvalidReason,
			Reason:  req.Reason,
			Message: fmt.Sprintf("%q is not a harvest reason", req.Reason),
		}
	}

	if req.Amount < 0 {
		return 0, &RuleViolation{
			Kind:      ViolationInvalidAmount,
			Reason:    req.Reason,
			Message:   "harvest amount must be positive",
			Attempted: req.Amount,
		}
	}
	if req.Amount > 0 {
		return req.Amount, nil
	}

	amount, ok := s.policy.DefaultAmount(req.Reason)
	if !ok {
		return 0, &RuleViolation{
			Kind:    ViolationInvalidAmount,
			Reason:  req.Reason,
			Message: fmt.Sprintf("%s requires an explicit amount", req.Reason),
		}
	}
	return amount, nil
}

func (s *harvestService) reject(req HarvestRequest, err error) error {
	log.WithFields(log.Fields{
		"userID": req.UserID,
		"reason": req.Reason,
		"amount": req.Amount,
		"error":  err,
	}).Warn("Harvest rejected")
	return err
}
