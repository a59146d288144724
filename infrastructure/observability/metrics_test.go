package observability

import (
	"context"
	"testing"
	"time"

	"grainflow/config"
	"grainflow/events"
	"grainflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func newTestProvider(t *testing.T) (*MetricsProvider, *sdkmetric.ManualReader) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true

	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProviderWithReader(cfg, reader)
	require.NoError(t, mp.Initialize(context.Background()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func TestMetricsProvider_RecordsLedgerEvents(t *testing.T) {
	mp, reader := newTestProvider(t)
	ctx := context.Background()

	mp.RecordTransaction(ctx, events.WalletBalanceChangedEvent{Amount: 5, Direction: models.DirectionEarn, Reason: models.ReasonPollVote})
	mp.RecordTransaction(ctx, events.WalletBalanceChangedEvent{Amount: 3, Direction: models.DirectionSpend, Reason: models.ReasonEventEntry})
	mp.RecordWalletCreated(ctx)
	mp.RecordCycle(ctx, events.CycleCompletedEvent{Kind: models.CycleKindCompost, WalletsAffected: 4, TotalAmountMoved: 80, Completed: true, Duration: time.Second})
	mp.RecordNATSMessagePublished(events.EventTypeWalletCreated)

	assert.Equal(t, int64(2), collectSum(t, reader, LedgerTransactionsTotal))
	assert.Equal(t, int64(8), collectSum(t, reader, LedgerGrainsMovedTotal))
	assert.Equal(t, int64(1), collectSum(t, reader, WalletsCreatedTotal))
	assert.Equal(t, int64(1), collectSum(t, reader, CycleRunsTotal))
	assert.Equal(t, int64(80), collectSum(t, reader, CycleGrainsMoved))
	assert.Equal(t, int64(4), collectSum(t, reader, CycleWalletsAffected))
	assert.Equal(t, int64(1), collectSum(t, reader, NATSMessagesPublishedTotal))
}

func TestMetricsProvider_SubscribesToBus(t *testing.T) {
	mp, reader := newTestProvider(t)
	bus := events.NewBus()
	mp.Subscribe(bus)

	bus.Emit(context.Background(), events.WalletBalanceChangedEvent{Amount: 10, Direction: models.DirectionEarn, Reason: models.ReasonInviteAccepted})

	assert.Eventually(t, func() bool {
		return collectSum(t, reader, LedgerGrainsMovedTotal) == 10
	}, time.Second, 10*time.Millisecond)
}

func TestMetricsProvider_DisabledIsNoop(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = false
	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))

	assert.NotPanics(t, func() {
		mp.RecordWalletCreated(context.Background())
		mp.RecordNATSMessagePublished(events.EventTypeCycleCompleted)
	})
}

func TestMetricsProvider_NoneExporterIsNoop(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "none"
	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))

	assert.NotPanics(t, func() {
		mp.RecordCycle(context.Background(), events.CycleCompletedEvent{Kind: models.CycleKindRedistribution})
	})
}

func TestMetricsProvider_UnknownExporter(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "carrier-pigeon"

	err := NewMetricsProvider(cfg).Initialize(context.Background())
	assert.ErrorContains(t, err, "unknown exporter type")
}
