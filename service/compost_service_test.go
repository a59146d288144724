package service

import (
	"context"
	"testing"
	"time"

	"grainflow/events"
	"grainflow/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func testCompostPolicy() models.CompostPolicy {
	return models.CompostPolicy{
		InactivityThreshold:  30 * day,
		MinimumBalance:       10,
		MinimumCompostAmount: 1,
		Rate:                 decimal.RequireFromString("0.1"),
	}
}

func newTestCompostService(uowFactory UnitOfWorkFactory, policy models.CompostPolicy, clock *testClock) *compostService {
	svc := NewCompostService(uowFactory, policy).(*compostService)
	svc.now = clock.Now
	return svc
}

func TestCompostService_DecaysInactiveWallet(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	seeded := ledger.seedWallet(1, 200, 200, testNow.Add(-31*day))
	svc := newTestCompostService(ledger, testCompostPolicy(), newTestClock(testNow))

	result, err := svc.Run(ctx, false)
	require.NoError(t, err)

	assert.False(t, result.DryRun)
	assert.Equal(t, int64(20), result.TotalComposted)
	assert.Equal(t, 1, result.WalletsAffected)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, models.CompostEntry{UserID: 1, WalletID: seeded.ID, BalanceBefore: 200, Amount: 20}, result.Entries[0])

	wallet := ledger.wallet(1)
	assert.Equal(t, int64(180), wallet.Balance)
	assert.Equal(t, int64(20), wallet.TotalComposted)
	require.NotNil(t, wallet.LastCompostedAt)
	assert.Equal(t, testNow, *wallet.LastCompostedAt)
	assert.Equal(t, seeded.LastActivityAt, wallet.LastActivityAt, "compost is not user activity")
	assert.Equal(t, wallet.Balance, ledger.journalBalance(seeded.ID))

	entries := ledger.entries(seeded.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, models.ReasonCompost, last.Reason)
	assert.Equal(t, models.DirectionSpend, last.Direction)
	assert.Equal(t, int64(20), last.Amount)

	silo := ledger.siloState()
	assert.Equal(t, int64(20), silo.TotalBalance)
	assert.Equal(t, int64(20), silo.TotalComposted)
	assert.Equal(t, int64(1), silo.TotalCycles)

	logs := ledger.logs()
	require.Len(t, logs, 1)
	assert.Equal(t, result.CycleLogID, logs[0].ID)
	assert.Equal(t, models.CycleKindCompost, logs[0].Kind)
	assert.True(t, logs[0].Completed)
	assert.Nil(t, logs[0].ErrorMessage)
	assert.Equal(t, 1, logs[0].WalletsAffected)
	assert.Equal(t, int64(20), logs[0].TotalAmountMoved)

	published := ledger.publishedEvents()
	require.Len(t, published, 2)
	assert.Equal(t, events.EventTypeWalletBalanceChanged, published[0].Type())
	completed := published[1].(events.CycleCompletedEvent)
	assert.Equal(t, models.CycleKindCompost, completed.Kind)
	assert.Equal(t, int64(20), completed.TotalAmountMoved)
}

func TestCompostService_DryRunMatchesLiveRun(t *testing.T) {
	ctx := context.Background()

	seed := func(ledger *fakeLedger) {
		ledger.seedWallet(1, 200, 200, testNow.Add(-31*day))
		ledger.seedWallet(2, 55, 55, testNow.Add(-90*day))
		ledger.seedWallet(3, 500, 500, testNow.Add(-2*day))
	}

	dryLedger := newFakeLedger()
	seed(dryLedger)
	liveLedger := newFakeLedger()
	seed(liveLedger)

	dry, err := newTestCompostService(dryLedger, testCompostPolicy(), newTestClock(testNow)).Run(ctx, true)
	require.NoError(t, err)
	live, err := newTestCompostService(liveLedger, testCompostPolicy(), newTestClock(testNow)).Run(ctx, false)
	require.NoError(t, err)

	assert.True(t, dry.DryRun)
	assert.Equal(t, live.Entries, dry.Entries)
	assert.Equal(t, live.TotalComposted, dry.TotalComposted)
	assert.Equal(t, int64(25), dry.TotalComposted)

	// Dry run leaves balances and the silo untouched but still logs the cycle
	assert.Equal(t, int64(200), dryLedger.wallet(1).Balance)
	assert.Equal(t, int64(55), dryLedger.wallet(2).Balance)
	assert.Nil(t, dryLedger.wallet(1).LastCompostedAt)
	assert.Equal(t, models.Silo{ID: models.SiloID}, dryLedger.siloState())

	logs := dryLedger.logs()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].DryRun)
	assert.Equal(t, int64(25), logs[0].TotalAmountMoved)
}

func TestCompostService_NoEligibleWalletsStillLogs(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.seedWallet(1, 200, 200, testNow.Add(-5*day))
	svc := newTestCompostService(ledger, testCompostPolicy(), newTestClock(testNow))

	result, err := svc.Run(ctx, false)
	require.NoError(t, err)

	assert.Zero(t, result.TotalComposted)
	assert.Zero(t, result.WalletsAffected)
	assert.Empty(t, result.Entries)

	logs := ledger.logs()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Completed)
	assert.Zero(t, logs[0].WalletsAffected)
	assert.Equal(t, int64(1), ledger.siloState().TotalCycles)
}

func TestCompostService_RepeatRunDoesNotDrainAgain(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.seedWallet(1, 200, 200, testNow.Add(-31*day))
	clock := newTestClock(testNow)
	svc := newTestCompostService(ledger, testCompostPolicy(), clock)

	_, err := svc.Run(ctx, false)
	require.NoError(t, err)

	clock.Advance(day)
	second, err := svc.Run(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, second.TotalComposted)
	assert.Equal(t, int64(180), ledger.wallet(1).Balance)

	// A full threshold after the last decay the wallet is eligible again
	clock.Advance(30 * day)
	third, err := svc.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(18), third.TotalComposted)
	assert.Equal(t, int64(162), ledger.wallet(1).Balance)

	silo := ledger.siloState()
	assert.Equal(t, int64(38), silo.TotalBalance)
	assert.Equal(t, int64(3), silo.TotalCycles)
	assert.Len(t, ledger.logs(), 3)
}

func TestCompostService_Eligibility(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		balance      int64
		lastActivity time.Time
		policy       func(*models.CompostPolicy)
		expected     int64
	}{
		{
			name:         "exactly at threshold",
			balance:      100,
			lastActivity: testNow.Add(-30 * day),
			expected:     10,
		},
		{
			name:         "one second short of threshold",
			balance:      100,
			lastActivity: testNow.Add(-30*day + time.Second),
			expected:     0,
		},
		{
			name:         "below minimum balance",
			balance:      9,
			lastActivity: testNow.Add(-60 * day),
			expected:     0,
		},
		{
			name:         "amount floors",
			balance:      19,
			lastActivity: testNow.Add(-60 * day),
			expected:     1,
		},
		{
			name:         "amount under minimum compost amount",
			balance:      15,
			lastActivity: testNow.Add(-60 * day),
			policy:       func(p *models.CompostPolicy) { p.MinimumCompostAmount = 2 },
			expected:     0,
		},
		{
			name:         "zero minimum balance still skips empty wallets",
			balance:      0,
			lastActivity: testNow.Add(-60 * day),
			policy:       func(p *models.CompostPolicy) { p.MinimumBalance = 0 },
			expected:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := testCompostPolicy()
			if tt.policy != nil {
				tt.policy(&policy)
			}

			ledger := newFakeLedger()
			ledger.seedWallet(1, tt.balance, tt.balance, tt.lastActivity)
			svc := newTestCompostService(ledger, policy, newTestClock(testNow))

			result, err := svc.Run(ctx, false)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, result.TotalComposted)
			assert.Equal(t, tt.balance-tt.expected, ledger.wallet(1).Balance)
		})
	}
}

func TestCompostService_FailureStopsRunAndLogsIncomplete(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	first := ledger.seedWallet(1, 100, 100, testNow.Add(-40*day))
	second := ledger.seedWallet(2, 300, 300, testNow.Add(-40*day))
	ledger.seedWallet(3, 500, 500, testNow.Add(-40*day))
	ledger.failOnCall("ApplyCompost", 2)
	svc := newTestCompostService(ledger, testCompostPolicy(), newTestClock(testNow))

	result, err := svc.Run(ctx, false)

	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.WalletsAffected)
	assert.Equal(t, int64(10), result.TotalComposted)

	// Earlier steps stay committed, the failed step is rolled back
	assert.Equal(t, int64(90), ledger.wallet(1).Balance)
	assert.Equal(t, int64(300), ledger.wallet(2).Balance)
	assert.Equal(t, int64(500), ledger.wallet(3).Balance)
	assert.Equal(t, int64(90), ledger.journalBalance(first.ID))
	assert.Equal(t, int64(300), ledger.journalBalance(second.ID))
	assert.Equal(t, int64(10), ledger.siloState().TotalBalance)

	logs := ledger.logs()
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Completed)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "injected storage failure")
	assert.Equal(t, int64(10), logs[0].TotalAmountMoved)
}

func TestCompostService_ConservesGrains(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	var walletIDs []int64
	for userID := int64(1); userID <= 20; userID++ {
		w := ledger.seedWallet(userID, userID*37, userID*37, testNow.Add(-time.Duration(userID*3)*day))
		walletIDs = append(walletIDs, w.ID)
	}

	totalBefore := int64(0)
	for userID := int64(1); userID <= 20; userID++ {
		totalBefore += ledger.wallet(userID).Balance
	}

	_, err := newTestCompostService(ledger, testCompostPolicy(), newTestClock(testNow)).Run(ctx, false)
	require.NoError(t, err)

	totalAfter := ledger.siloState().TotalBalance
	for i, userID := 0, int64(1); userID <= 20; i, userID = i+1, userID+1 {
		w := ledger.wallet(userID)
		assert.GreaterOrEqual(t, w.Balance, int64(0))
		assert.Equal(t, w.Balance, ledger.journalBalance(walletIDs[i]))
		totalAfter += w.Balance
	}
	assert.Equal(t, totalBefore, totalAfter)
}
