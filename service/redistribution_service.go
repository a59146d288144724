package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grainflow/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var errSiloShortfall = errors.New("silo balance no longer covers the share")

// redistributionService implements the RedistributionService interface
type redistributionService struct {
	uowFactory UnitOfWorkFactory
	policy     models.RedistributionPolicy
	now        func() time.Time
}

// NewRedistributionService creates a new redistribution service
func NewRedistributionService(uowFactory UnitOfWorkFactory, policy models.RedistributionPolicy) RedistributionService {
	return &redistributionService{
		uowFactory: uowFactory,
		policy:     policy,
		now:        time.Now,
	}
}

// Run splits floor(silo × rate) evenly across wallets with lifetime harvest. The floor
// remainder of the split stays in the silo.
func (s *redistributionService) Run(ctx context.Context, rateOverride *decimal.Decimal) (*models.RedistributionResult, error) {
	if !s.policy.Enabled {
		log.Info("Redistribution disabled, skipping")
		return &models.RedistributionResult{OK: false, Reason: models.RedistributionDisabled}, nil
	}

	rate := s.policy.Rate
	if rateOverride != nil {
		rate = *rateOverride
	}
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, &RuleViolation{
			Kind:    ViolationInvalidRate,
			Message: fmt.Sprintf("redistribution rate must be in (0, 1], got %s", rate),
		}
	}

	startedAt := s.now().UTC()

	silo, eligible, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.RedistributionResult{
		TargetAmount:    models.FloorFraction(silo.TotalBalance, rate),
		EligibleWallets: len(eligible),
		TotalBefore:     silo.TotalBalance,
		TotalAfter:      silo.TotalBalance,
	}

	switch {
	case result.TargetAmount == 0:
		result.Reason = models.RedistributionNothingToMove
	case result.EligibleWallets == 0:
		result.Reason = models.RedistributionNoEligible
	default:
		result.PerWallet = result.TargetAmount / int64(result.EligibleWallets)
		if result.PerWallet == 0 {
			result.Reason = models.RedistributionShareRoundsZero
		}
	}

	summary := map[string]any{
		"rate":          rate.String(),
		"target_amount": result.TargetAmount,
		"per_wallet":    result.PerWallet,
		"eligible":      result.EligibleWallets,
		"total_before":  result.TotalBefore,
	}

	if result.Reason != "" {
		summary["skipped"] = result.Reason
		cycleLog := s.cycleLog(startedAt, 0, 0, nil, summary)
		if err := recordCycle(ctx, s.uowFactory, cycleLog, nil); err != nil {
			return nil, err
		}
		result.CycleLogID = cycleLog.ID

		log.WithFields(log.Fields{
			"reason":      result.Reason,
			"totalBefore": result.TotalBefore,
			"eligible":    result.EligibleWallets,
		}).Info("Redistribution had nothing to do")
		return result, nil
	}

	credited := 0
	var runErr error
	for _, wallet := range eligible {
		ok, err := s.creditWallet(ctx, wallet.ID, result.PerWallet, rate)
		if err != nil {
			runErr = fmt.Errorf("redistribute to wallet %d: %w", wallet.ID, err)
			break
		}
		if ok {
			credited++
		}
	}
	result.Redistributed = result.PerWallet * int64(credited)

	cycleLog := s.cycleLog(startedAt, credited, result.Redistributed, runErr, summary)
	finish := func(ctx context.Context, uow UnitOfWork) error {
		after, err := uow.SiloRepository().Get(ctx)
		if err != nil {
			return systemError("read silo", err)
		}
		result.TotalAfter = after.TotalBalance
		cycleLog.Summary["total_after"] = after.TotalBalance
		return nil
	}
	if err := recordCycle(ctx, s.uowFactory, cycleLog, finish); err != nil {
		log.WithFields(log.Fields{
			"error":         err,
			"redistributed": result.Redistributed,
		}).Error("Failed to record redistribution cycle")
		if runErr == nil {
			runErr = err
		}
	}
	result.CycleLogID = cycleLog.ID

	fields := log.Fields{
		"rate":          rate.String(),
		"eligible":      result.EligibleWallets,
		"credited":      credited,
		"perWallet":     result.PerWallet,
		"redistributed": result.Redistributed,
		"totalBefore":   result.TotalBefore,
		"totalAfter":    result.TotalAfter,
	}
	if runErr != nil {
		fields["error"] = runErr
		log.WithFields(fields).Error("Redistribution cycle stopped early")
		return result, runErr
	}

	result.OK = true
	log.WithFields(fields).Info("Redistribution cycle completed")
	return result, nil
}

// snapshot reads the silo and the eligible wallets once, at cycle start
func (s *redistributionService) snapshot(ctx context.Context) (*models.Silo, []*models.Wallet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, nil, systemError("begin redistribution snapshot", err)
	}
	defer uow.Rollback()

	silo, err := uow.SiloRepository().Get(ctx)
	if err != nil {
		return nil, nil, systemError("read silo", err)
	}

	eligible, err := uow.WalletRepository().ListRedistributionEligible(ctx, s.policy.MinimumActivity)
	if err != nil {
		return nil, nil, systemError("list eligible wallets", err)
	}

	return silo, eligible, nil
}

// creditWallet moves one share from the silo to a wallet as a single atomic step
func (s *redistributionService) creditWallet(ctx context.Context, walletID int64, share int64, rate decimal.Decimal) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, systemError("begin redistribution step", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetForUpdate(ctx, walletID)
	if err != nil {
		return false, systemError("lock wallet", err)
	}
	if wallet == nil {
		return false, nil
	}

	if _, err := uow.SiloRepository().GetForUpdate(ctx); err != nil {
		return false, systemError("lock silo", err)
	}
	silo, err := uow.SiloRepository().Debit(ctx, share)
	if err != nil {
		return false, systemError("debit silo", err)
	}
	if silo == nil {
		return false, errSiloShortfall
	}

	updated, err := uow.WalletRepository().ApplyRedistribution(ctx, wallet.ID, share)
	if err != nil {
		return false, systemError("credit wallet", err)
	}

	tx := &models.Transaction{
		Amount:    share,
		Direction: models.DirectionEarn,
		Reason:    models.ReasonSiloRedistribution,
		Metadata: map[string]any{
			"rate": rate.String(),
		},
		CreatedAt: s.now().UTC(),
	}
	if err := RecordBalanceChange(ctx, uow, wallet, updated, tx); err != nil {
		return false, systemError("record redistribution", err)
	}

	if err := uow.Commit(); err != nil {
		return false, systemError("commit redistribution step", err)
	}

	return true, nil
}

func (s *redistributionService) cycleLog(startedAt time.Time, wallets int, moved int64, runErr error, summary map[string]any) *models.CycleLog {
	return &models.CycleLog{
		Kind:             models.CycleKindRedistribution,
		StartedAt:        startedAt,
		FinishedAt:       s.now().UTC(),
		WalletsAffected:  wallets,
		TotalAmountMoved: moved,
		Completed:        runErr == nil,
		ErrorMessage:     errorMessage(runErr),
		Summary:          summary,
	}
}
