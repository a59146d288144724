package service

import (
	"context"
	"testing"

	"grainflow/events"
	"grainflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpendService(uowFactory UnitOfWorkFactory, clock *testClock) *spendService {
	svc := NewSpendService(uowFactory).(*spendService)
	svc.now = clock.Now
	return svc
}

func TestSpendService_Success(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	seeded := ledger.seedWallet(1, 100, 100, testNow.AddDate(0, 0, -3))
	svc := newTestSpendService(ledger, newTestClock(testNow))

	tx, err := svc.Spend(ctx, 1, 40, models.ReasonProjectSupport)
	require.NoError(t, err)

	assert.Equal(t, int64(40), tx.Amount)
	assert.Equal(t, models.DirectionSpend, tx.Direction)
	assert.Equal(t, models.ReasonProjectSupport, tx.Reason)

	wallet := ledger.wallet(1)
	assert.Equal(t, int64(60), wallet.Balance)
	assert.Equal(t, int64(40), wallet.TotalPlanted)
	assert.Equal(t, testNow, wallet.LastActivityAt)
	assert.Equal(t, wallet.Balance, ledger.journalBalance(seeded.ID))

	published := ledger.publishedEvents()
	require.Len(t, published, 1)
	changed := published[0].(events.WalletBalanceChangedEvent)
	assert.Equal(t, int64(100), changed.OldBalance)
	assert.Equal(t, int64(60), changed.NewBalance)
	assert.Equal(t, models.DirectionSpend, changed.Direction)
}

func TestSpendService_ExactBalance(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.seedWallet(1, 25, 25, testNow)
	svc := newTestSpendService(ledger, newTestClock(testNow))

	_, err := svc.Spend(ctx, 1, 25, models.ReasonEventEntry)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ledger.wallet(1).Balance)
}

func TestSpendService_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	seeded := ledger.seedWallet(1, 30, 30, testNow.AddDate(0, 0, -3))
	svc := newTestSpendService(ledger, newTestClock(testNow))

	tx, err := svc.Spend(ctx, 1, 31, models.ReasonProposalBoost)

	assert.Nil(t, tx)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	violation, _ := AsRuleViolation(err)
	assert.Equal(t, int64(30), violation.Limit)
	assert.Equal(t, int64(31), violation.Attempted)

	wallet := ledger.wallet(1)
	assert.Equal(t, int64(30), wallet.Balance)
	assert.Zero(t, wallet.TotalPlanted)
	assert.Equal(t, seeded.LastActivityAt, wallet.LastActivityAt)
	assert.Len(t, ledger.entries(seeded.ID), 1)
	assert.Empty(t, ledger.publishedEvents())
}

func TestSpendService_UnknownUserCreatesNothing(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	svc := newTestSpendService(ledger, newTestClock(testNow))

	_, err := svc.Spend(ctx, 77, 1, models.ReasonProjectSupport)

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Nil(t, ledger.wallet(77))
}

func TestSpendService_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  int64
		reason  models.Reason
		wantErr error
	}{
		{"zero amount", 0, models.ReasonProjectSupport, ErrInvalidAmount},
		{"negative amount", -5, models.ReasonProjectSupport, ErrInvalidAmount},
		{"harvest reason", 5, models.ReasonContentRead, ErrInvalidReason},
		{"compost is reserved", 5, models.ReasonCompost, ErrInvalidReason},
		{"unknown reason", 5, models.Reason("cash-out"), ErrInvalidReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			ledger.seedWallet(1, 100, 100, testNow)
			svc := newTestSpendService(ledger, newTestClock(testNow))

			_, err := svc.Spend(ctx, 1, tt.amount, tt.reason)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(100), ledger.wallet(1).Balance)
			assert.Zero(t, ledger.begins)
		})
	}
}

func TestSpendService_CommitFailureLeavesBalance(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.seedWallet(1, 100, 100, testNow)
	ledger.failOnCall("Commit", 1)
	svc := newTestSpendService(ledger, newTestClock(testNow))

	_, err := svc.Spend(ctx, 1, 10, models.ReasonProjectSupport)

	assert.True(t, IsSystemError(err))
	assert.Equal(t, int64(100), ledger.wallet(1).Balance)
	assert.Empty(t, ledger.publishedEvents())
}
