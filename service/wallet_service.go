package service

import (
	"context"
	"time"

	"grainflow/events"
	"grainflow/models"

	log "github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// walletService implements the WalletService interface
type walletService struct {
	uowFactory UnitOfWorkFactory
	cache      BalanceCache
}

// NewWalletService creates a new wallet service. cache may be nil.
func NewWalletService(uowFactory UnitOfWorkFactory, cache BalanceCache) WalletService {
	return &walletService{
		uowFactory: uowFactory,
		cache:      cache,
	}
}

// GetOrCreate returns the user's wallet, creating an empty one on first use
func (s *walletService) GetOrCreate(ctx context.Context, userID int64) (*models.Wallet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin get or create wallet", err)
	}
	defer uow.Rollback()

	wallet, created, err := uow.WalletRepository().GetOrCreateForUpdate(ctx, userID)
	if err != nil {
		return nil, systemError("get or create wallet", err)
	}

	if created {
		uow.EventBus().Publish(events.WalletCreatedEvent{UserID: wallet.UserID, WalletID: wallet.ID})
	}

	if err := uow.Commit(); err != nil {
		return nil, systemError("commit get or create wallet", err)
	}

	if created {
		log.WithFields(log.Fields{
			"userID":   userID,
			"walletID": wallet.ID,
		}).Info("Wallet created")
	}

	return wallet, nil
}

// GetBalance reads the balance view through the cache. It never creates a wallet.
func (s *walletService) GetBalance(ctx context.Context, userID int64) (*models.BalanceView, error) {
	if s.cache != nil {
		view, err := s.cache.Get(ctx, userID)
		if err != nil {
			log.WithFields(log.Fields{
				"userID": userID,
				"error":  err,
			}).Warn("Balance cache read failed, falling back to database")
		} else if view != nil {
			return view, nil
		}
	}

	wallet, err := s.findWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &models.BalanceView{UserID: userID}
	if wallet != nil {
		view = wallet.View()
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, view); err != nil {
			log.WithFields(log.Fields{
				"userID": userID,
				"error":  err,
			}).Warn("Balance cache write failed")
		}
	}

	return view, nil
}

// GetHistory returns the newest journal entries for a user
func (s *walletService) GetHistory(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin wallet history", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, systemError("get wallet", err)
	}
	if wallet == nil {
		return []*models.Transaction{}, nil
	}

	transactions, err := uow.TransactionRepository().GetByWallet(ctx, wallet.ID, limit)
	if err != nil {
		return nil, systemError("get wallet history", err)
	}
	return transactions, nil
}

// Reconcile compares the stored balance with the sum of the journal
func (s *walletService) Reconcile(ctx context.Context, userID int64) (*models.Reconciliation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin reconcile", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, systemError("get wallet", err)
	}
	if wallet == nil {
		return &models.Reconciliation{UserID: userID, Consistent: true}, nil
	}

	earned, spent, err := uow.TransactionRepository().SumByDirection(ctx, wallet.ID)
	if err != nil {
		return nil, systemError("sum journal", err)
	}

	result := &models.Reconciliation{
		UserID:  userID,
		Balance: wallet.Balance,
		Earned:  earned,
		Spent:   spent,
	}
	result.Consistent = result.Drift() == 0

	if !result.Consistent {
		log.WithFields(log.Fields{
			"userID":  userID,
			"balance": wallet.Balance,
			"earned":  earned,
			"spent":   spent,
			"drift":   result.Drift(),
		}).Error("Wallet balance does not match journal")
	}

	return result, nil
}

func (s *walletService) findWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin get balance", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, systemError("get wallet", err)
	}
	return wallet, nil
}

// RefreshOnBalanceChange stores the committed view of a changed wallet. It must be
// registered with Bus.SubscribeSync so the cache is current when the write returns.
// If the store fails the entry is dropped instead.
func RefreshOnBalanceChange(cache BalanceCache) events.Handler {
	return func(ctx context.Context, event events.Event) {
		changed, ok := event.(events.WalletBalanceChangedEvent)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		view := changed.Snapshot
		err := cache.Set(ctx, &view)
		if err == nil {
			return
		}

		log.WithFields(log.Fields{
			"userID":  changed.UserID,
			"version": view.Version,
			"error":   err,
		}).Warn("Failed to refresh cached balance, invalidating")

		if err := cache.Invalidate(ctx, changed.UserID); err != nil {
			log.WithFields(log.Fields{
				"userID": changed.UserID,
				"error":  err,
			}).Error("Failed to invalidate cached balance")
		}
	}
}
