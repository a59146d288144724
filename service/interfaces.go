package service

import (
	"context"
	"time"

	"grainflow/events"
	"grainflow/models"

	"github.com/shopspring/decimal"
)

// WalletRepository defines the interface for wallet data access.
// Every Apply* method updates one locked row and returns the row after the update.
type WalletRepository interface {
	// GetByUserID retrieves a wallet without locking it, nil if the user has none
	GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error)

	// GetOrCreateForUpdate returns the user's wallet locked for update, creating it if missing
	GetOrCreateForUpdate(ctx context.Context, userID int64) (wallet *models.Wallet, created bool, err error)

	// GetForUpdate locks a wallet by id, nil if it does not exist
	GetForUpdate(ctx context.Context, walletID int64) (*models.Wallet, error)

	// ApplyHarvest credits balance and total_harvested and records activity
	ApplyHarvest(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error)

	// ApplySpend debits balance, credits total_planted and records activity.
	// Returns nil when the balance does not cover the amount.
	ApplySpend(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error)

	// ApplyCompost debits balance, credits total_composted and stamps last_composted_at.
	// Returns nil when the balance does not cover the amount.
	ApplyCompost(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error)

	// ApplyRedistribution credits balance and total_harvested without touching activity
	ApplyRedistribution(ctx context.Context, walletID int64, amount int64) (*models.Wallet, error)

	// ListCompostCandidates returns wallets idle since before inactiveBefore holding at least minimumBalance
	ListCompostCandidates(ctx context.Context, inactiveBefore time.Time, minimumBalance int64) ([]*models.Wallet, error)

	// ListRedistributionEligible returns wallets whose lifetime harvest reaches minimumActivity
	ListRedistributionEligible(ctx context.Context, minimumActivity int64) ([]*models.Wallet, error)
}

// TransactionRepository defines the interface for the append-only journal
type TransactionRepository interface {
	// Append inserts a journal entry and fills its id and timestamp
	Append(ctx context.Context, tx *models.Transaction) error

	// SumEarnedSince totals EARN entries for one reason since a point in time
	SumEarnedSince(ctx context.Context, walletID int64, reason models.Reason, since time.Time) (int64, error)

	// GetByWallet returns the newest entries first
	GetByWallet(ctx context.Context, walletID int64, limit int) ([]*models.Transaction, error)

	// SumByDirection totals all EARN and SPEND entries of a wallet
	SumByDirection(ctx context.Context, walletID int64) (earned int64, spent int64, err error)
}

// SiloRepository defines the interface for the singleton collective pool
type SiloRepository interface {
	// Get reads the silo without locking it
	Get(ctx context.Context) (*models.Silo, error)

	// GetForUpdate locks the silo row
	GetForUpdate(ctx context.Context) (*models.Silo, error)

	// Credit adds composted grains to total_balance and total_composted
	Credit(ctx context.Context, amount int64) (*models.Silo, error)

	// Debit removes grains from total_balance. Returns nil when the balance does not cover the amount.
	Debit(ctx context.Context, amount int64) (*models.Silo, error)

	// IncrementCycles counts one live compost run
	IncrementCycles(ctx context.Context) error
}

// CycleLogRepository defines the interface for cycle run records
type CycleLogRepository interface {
	// Create inserts a cycle log and fills its id
	Create(ctx context.Context, cycleLog *models.CycleLog) error

	// GetLatest returns the most recent log of a kind, nil if none
	GetLatest(ctx context.Context, kind models.CycleKind) (*models.CycleLog, error)

	// List returns the newest logs first, optionally filtered by kind
	List(ctx context.Context, kind *models.CycleKind, limit int) ([]*models.CycleLog, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork scopes repositories to one database transaction
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	WalletRepository() WalletRepository
	TransactionRepository() TransactionRepository
	SiloRepository() SiloRepository
	CycleLogRepository() CycleLogRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// BalanceCache is a read-through cache of balance views. Set must keep a cached view
// whose Version is newer than the one being stored.
type BalanceCache interface {
	Get(ctx context.Context, userID int64) (*models.BalanceView, error)
	Set(ctx context.Context, view *models.BalanceView) error
	Invalidate(ctx context.Context, userID int64) error
}

// HarvestThrottle bounds how fast one user can harvest for one reason
type HarvestThrottle interface {
	Allow(userID int64, reason models.Reason) bool
}

// HarvestRequest describes one credit. Amount zero means the reason's default amount.
type HarvestRequest struct {
	UserID   int64
	Reason   models.Reason
	Amount   int64
	Metadata map[string]any
}

// WalletService defines the interface for wallet reads
type WalletService interface {
	// GetOrCreate returns the user's wallet, creating an empty one if needed
	GetOrCreate(ctx context.Context, userID int64) (*models.Wallet, error)

	// GetBalance returns the balance view; unknown users get a zero view and no wallet is created
	GetBalance(ctx context.Context, userID int64) (*models.BalanceView, error)

	// GetHistory returns the newest journal entries of a user
	GetHistory(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)

	// Reconcile compares the stored balance with the journal
	Reconcile(ctx context.Context, userID int64) (*models.Reconciliation, error)
}

// HarvestService credits wallets
type HarvestService interface {
	Harvest(ctx context.Context, req HarvestRequest) (*models.Transaction, error)
}

// SpendService debits wallets
type SpendService interface {
	Spend(ctx context.Context, userID int64, amount int64, reason models.Reason) (*models.Transaction, error)
}

// CompostService runs the inactivity decay
type CompostService interface {
	Run(ctx context.Context, dryRun bool) (*models.CompostResult, error)
}

// RedistributionService runs the silo redistribution. A nil rate uses the configured rate.
type RedistributionService interface {
	Run(ctx context.Context, rate *decimal.Decimal) (*models.RedistributionResult, error)
}

// SiloService exposes the collective pool
type SiloService interface {
	Status(ctx context.Context) (*models.SiloStatus, error)
	RecentCycles(ctx context.Context, kind *models.CycleKind, limit int) ([]*models.CycleLog, error)
}

// Engine is the call surface consumed by the serving layer and the schedulers
type Engine interface {
	GetBalance(ctx context.Context, userID int64) (*models.BalanceView, error)
	Harvest(ctx context.Context, req HarvestRequest) (*models.Transaction, error)
	Spend(ctx context.Context, userID int64, amount int64, reason models.Reason) (*models.Transaction, error)
	RunCompostCycle(ctx context.Context, dryRun bool) (*models.CompostResult, error)
	RunRedistributionCycle(ctx context.Context, rate *decimal.Decimal) (*models.RedistributionResult, error)
}
