package service

import (
	"context"
	"fmt"
	"time"

	"grainflow/models"

	log "github.com/sirupsen/logrus"
)

// compostService implements the CompostService interface
type compostService struct {
	uowFactory UnitOfWorkFactory
	policy     models.CompostPolicy
	now        func() time.Time
}

// NewCompostService creates a new compost service
func NewCompostService(uowFactory UnitOfWorkFactory, policy models.CompostPolicy) CompostService {
	return &compostService{
		uowFactory: uowFactory,
		policy:     policy,
		now:        time.Now,
	}
}

// Run makes one pass over all wallets. Each wallet's decay commits on its own, so a
// failure part-way keeps earlier steps; the returned result then covers only those
// steps and the error is returned alongside it.
func (s *compostService) Run(ctx context.Context, dryRun bool) (*models.CompostResult, error) {
	startedAt := s.now().UTC()

	plan, err := s.plan(ctx, startedAt)
	if err != nil {
		return nil, err
	}

	result := &models.CompostResult{DryRun: dryRun}
	var runErr error

	if dryRun {
		for _, entry := range plan {
			result.Entries = append(result.Entries, entry)
			result.TotalComposted += entry.Amount
		}
	} else {
		for _, entry := range plan {
			applied, err := s.compostWallet(ctx, entry.WalletID, startedAt)
			if err != nil {
				runErr = fmt.Errorf("compost wallet %d: %w", entry.WalletID, err)
				break
			}
			if applied == nil {
				continue
			}
			result.Entries = append(result.Entries, *applied)
			result.TotalComposted += applied.Amount
		}
	}
	result.WalletsAffected = len(result.Entries)

	cycleLog := &models.CycleLog{
		Kind:             models.CycleKindCompost,
		StartedAt:        startedAt,
		FinishedAt:       s.now().UTC(),
		WalletsAffected:  result.WalletsAffected,
		TotalAmountMoved: result.TotalComposted,
		DryRun:           dryRun,
		Completed:        runErr == nil,
		ErrorMessage:     errorMessage(runErr),
		Summary: map[string]any{
			"candidates":           len(plan),
			"rate":                 s.policy.Rate.String(),
			"inactivity_threshold": s.policy.InactivityThreshold.String(),
			"minimum_balance":      s.policy.MinimumBalance,
		},
	}

	var finish func(context.Context, UnitOfWork) error
	if !dryRun {
		finish = func(ctx context.Context, uow UnitOfWork) error {
			if err := uow.SiloRepository().IncrementCycles(ctx); err != nil {
				return systemError("count compost cycle", err)
			}
			return nil
		}
	}

	if err := recordCycle(ctx, s.uowFactory, cycleLog, finish); err != nil {
		log.WithFields(log.Fields{
			"error":          err,
			"totalComposted": result.TotalComposted,
		}).Error("Failed to record compost cycle")
		if runErr == nil {
			runErr = err
		}
	}
	result.CycleLogID = cycleLog.ID

	fields := log.Fields{
		"dryRun":          dryRun,
		"candidates":      len(plan),
		"walletsAffected": result.WalletsAffected,
		"totalComposted":  result.TotalComposted,
		"duration":        cycleLog.FinishedAt.Sub(startedAt),
	}
	if runErr != nil {
		fields["error"] = runErr
		log.WithFields(fields).Error("Compost cycle stopped early")
		return result, runErr
	}
	log.WithFields(fields).Info("Compost cycle completed")

	return result, nil
}

// plan selects eligible wallets with the same predicate for live and dry runs
func (s *compostService) plan(ctx context.Context, at time.Time) ([]models.CompostEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin compost scan", err)
	}
	defer uow.Rollback()

	candidates, err := uow.WalletRepository().ListCompostCandidates(ctx, at.Add(-s.policy.InactivityThreshold), s.policy.MinimumBalance)
	if err != nil {
		return nil, systemError("list compost candidates", err)
	}

	var plan []models.CompostEntry
	for _, wallet := range candidates {
		amount, ok := s.policy.Eligible(wallet, at)
		if !ok {
			continue
		}
		plan = append(plan, models.CompostEntry{
			UserID:        wallet.UserID,
			WalletID:      wallet.ID,
			BalanceBefore: wallet.Balance,
			Amount:        amount,
		})
	}
	return plan, nil
}

// compostWallet decays one wallet into the silo as a single atomic step. The wallet is
// re-checked under its lock; nil means it stopped being eligible since the scan.
func (s *compostService) compostWallet(ctx context.Context, walletID int64, at time.Time) (*models.CompostEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin compost step", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetForUpdate(ctx, walletID)
	if err != nil {
		return nil, systemError("lock wallet", err)
	}
	if wallet == nil {
		return nil, nil
	}

	amount, ok := s.policy.Eligible(wallet, at)
	if !ok {
		return nil, nil
	}

	stepTime := s.now().UTC()
	updated, err := uow.WalletRepository().ApplyCompost(ctx, wallet.ID, amount, stepTime)
	if err != nil {
		return nil, systemError("debit wallet", err)
	}
	if updated == nil {
		return nil, nil
	}

	// Lock order is wallet then silo in both cycles
	if _, err := uow.SiloRepository().GetForUpdate(ctx); err != nil {
		return nil, systemError("lock silo", err)
	}
	if _, err := uow.SiloRepository().Credit(ctx, amount); err != nil {
		return nil, systemError("credit silo", err)
	}

	tx := &models.Transaction{
		Amount:    amount,
		Direction: models.DirectionSpend,
		Reason:    models.ReasonCompost,
		Metadata: map[string]any{
			"rate":           s.policy.Rate.String(),
			"balance_before": wallet.Balance,
		},
		CreatedAt: stepTime,
	}
	if err := RecordBalanceChange(ctx, uow, wallet, updated, tx); err != nil {
		return nil, systemError("record compost", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, systemError("commit compost step", err)
	}

	log.WithFields(log.Fields{
		"userID":     wallet.UserID,
		"amount":     amount,
		"newBalance": updated.Balance,
	}).Debug("Wallet composted")

	return &models.CompostEntry{
		UserID:        wallet.UserID,
		WalletID:      wallet.ID,
		BalanceBefore: wallet.Balance,
		Amount:        amount,
	}, nil
}
