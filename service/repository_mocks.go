package service

import (
	"context"
	"time"

	"grainflow/events"
	"grainflow/models"

	"github.com/stretchr/testify/mock"
)

// MockWalletRepository is a mock implementation of WalletRepository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetOrCreateForUpdate(ctx context.Context, userID int64) (*models.Wallet, bool, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Wallet), args.Bool(1), args.Error(2)
}

func (m *MockWalletRepository) GetForUpdate(ctx context.Context, walletID int64) (*models.Wallet, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ApplyHarvest(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	args := m.Called(ctx, walletID, amount, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ApplySpend(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	args := m.Called(ctx, walletID, amount, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ApplyCompost(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	args := m.Called(ctx, walletID, amount, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ApplyRedistribution(ctx context.Context, walletID int64, amount int64) (*models.Wallet, error) {
	args := m.Called(ctx, walletID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ListCompostCandidates(ctx context.Context, inactiveBefore time.Time, minimumBalance int64) ([]*models.Wallet, error) {
	args := m.Called(ctx, inactiveBefore, minimumBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ListRedistributionEligible(ctx context.Context, minimumActivity int64) ([]*models.Wallet, error) {
	args := m.Called(ctx, minimumActivity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wallet), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Append(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) SumEarnedSince(ctx context.Context, walletID int64, reason models.Reason, since time.Time) (int64, error) {
	args := m.Called(ctx, walletID, reason, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepository) GetByWallet(ctx context.Context, walletID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, walletID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SumByDirection(ctx context.Context, walletID int64) (int64, int64, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// MockSiloRepository is a mock implementation of SiloRepository
type MockSiloRepository struct {
	mock.Mock
}

func (m *MockSiloRepository) Get(ctx context.Context) (*models.Silo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Silo), args.Error(1)
}

func (m *MockSiloRepository) GetForUpdate(ctx context.Context) (*models.Silo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Silo), args.Error(1)
}

func (m *MockSiloRepository) Credit(ctx context.Context, amount int64) (*models.Silo, error) {
	args := m.Called(ctx, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Silo), args.Error(1)
}

func (m *MockSiloRepository) Debit(ctx context.Context, amount int64) (*models.Silo, error) {
	args := m.Called(ctx, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Silo), args.Error(1)
}

func (m *MockSiloRepository) IncrementCycles(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCycleLogRepository is a mock implementation of CycleLogRepository
type MockCycleLogRepository struct {
	mock.Mock
}

func (m *MockCycleLogRepository) Create(ctx context.Context, cycleLog *models.CycleLog) error {
	args := m.Called(ctx, cycleLog)
	return args.Error(0)
}

func (m *MockCycleLogRepository) GetLatest(ctx context.Context, kind models.CycleKind) (*models.CycleLog, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CycleLog), args.Error(1)
}

func (m *MockCycleLogRepository) List(ctx context.Context, kind *models.CycleKind, limit int) ([]*models.CycleLog, error) {
	args := m.Called(ctx, kind, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CycleLog), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repositories are plain
// fields set with SetRepositories; only the transaction lifecycle is mocked.
type MockUnitOfWork struct {
	mock.Mock
	walletRepo      WalletRepository
	transactionRepo TransactionRepository
	siloRepo        SiloRepository
	cycleLogRepo    CycleLogRepository
	eventPublisher  EventPublisher
}

// SetRepositories configures the repositories returned by the unit of work
func (m *MockUnitOfWork) SetRepositories(wallets WalletRepository, journal TransactionRepository, silo SiloRepository, cycleLogs CycleLogRepository, publisher EventPublisher) {
	m.walletRepo = wallets
	m.transactionRepo = journal
	m.siloRepo = silo
	m.cycleLogRepo = cycleLogs
	m.eventPublisher = publisher
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) WalletRepository() WalletRepository {
	return m.walletRepo
}

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) SiloRepository() SiloRepository {
	return m.siloRepo
}

func (m *MockUnitOfWork) CycleLogRepository() CycleLogRepository {
	return m.cycleLogRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventPublisher
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockBalanceCache is a mock implementation of BalanceCache
type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) Get(ctx context.Context, userID int64) (*models.BalanceView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BalanceView), args.Error(1)
}

func (m *MockBalanceCache) Set(ctx context.Context, view *models.BalanceView) error {
	args := m.Called(ctx, view)
	return args.Error(0)
}

func (m *MockBalanceCache) Invalidate(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockHarvestThrottle is a mock implementation of HarvestThrottle
type MockHarvestThrottle struct {
	mock.Mock
}

func (m *MockHarvestThrottle) Allow(userID int64, reason models.Reason) bool {
	args := m.Called(userID, reason)
	return args.Bool(0)
}
