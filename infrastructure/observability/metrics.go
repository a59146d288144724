package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grainflow/config"
	"grainflow/events"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the ledger
type MetricsProvider struct {
	config        *config.Config
	reader        sdkmetric.Reader
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	transactionsCounter   metric.Int64Counter
	grainsMovedCounter    metric.Int64Counter
	walletsCreatedCounter metric.Int64Counter
	cycleRunsCounter      metric.Int64Counter
	cycleGrainsCounter    metric.Int64Counter
	cycleWalletsCounter   metric.Int64Counter
	cycleDurationHist     metric.Float64Histogram
	natsPublishedCounter  metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// NewMetricsProviderWithReader creates a provider that feeds the given reader instead of
// building an exporter from config
func NewMetricsProviderWithReader(cfg *config.Config, reader sdkmetric.Reader) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
		reader: reader,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mp.reader
	if reader == nil {
		var exporter sdkmetric.Exporter
		switch mp.config.OTelExporterType {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
			log.Info("Using console metric exporter")

		case "otlp":
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			exporter, err = otlpmetricgrpc.New(ctx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

		case "none":
			log.Info("Metrics export disabled (exporter_type='none')")
			mp.initialized = true
			return nil

		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
		}

		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
		)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("grainflow")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.transactionsCounter, err = mp.meter.Int64Counter(
		LedgerTransactionsTotal,
		metric.WithDescription("Total number of journal entries committed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transactions counter: %w", err)
	}

	mp.grainsMovedCounter, err = mp.meter.Int64Counter(
		LedgerGrainsMovedTotal,
		metric.WithDescription("Total grains moved by committed journal entries"),
		metric.WithUnit("{grain}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create grains moved counter: %w", err)
	}

	mp.walletsCreatedCounter, err = mp.meter.Int64Counter(
		WalletsCreatedTotal,
		metric.WithDescription("Total number of wallets created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create wallets created counter: %w", err)
	}

	mp.cycleRunsCounter, err = mp.meter.Int64Counter(
		CycleRunsTotal,
		metric.WithDescription("Total number of compost and redistribution runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycle runs counter: %w", err)
	}

	mp.cycleGrainsCounter, err = mp.meter.Int64Counter(
		CycleGrainsMoved,
		metric.WithDescription("Total grains moved by cycles"),
		metric.WithUnit("{grain}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycle grains counter: %w", err)
	}

	mp.cycleWalletsCounter, err = mp.meter.Int64Counter(
		CycleWalletsAffected,
		metric.WithDescription("Total wallets touched by cycles"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycle wallets counter: %w", err)
	}

	mp.cycleDurationHist, err = mp.meter.Float64Histogram(
		CycleDuration,
		metric.WithDescription("Duration of cycle runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycle duration histogram: %w", err)
	}

	mp.natsPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordTransaction records one committed journal entry
func (mp *MetricsProvider) RecordTransaction(ctx context.Context, e events.WalletBalanceChangedEvent) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelDirection, string(e.Direction)),
		attribute.String(LabelReason, string(e.Reason)),
	)
	mp.transactionsCounter.Add(ctx, 1, attrs)
	mp.grainsMovedCounter.Add(ctx, e.Amount, attrs)
}

// RecordWalletCreated records a lazily created wallet
func (mp *MetricsProvider) RecordWalletCreated(ctx context.Context) {
	if !mp.isEnabled() {
		return
	}
	mp.walletsCreatedCounter.Add(ctx, 1)
}

// RecordCycle records a finished compost or redistribution run
func (mp *MetricsProvider) RecordCycle(ctx context.Context, e events.CycleCompletedEvent) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelKind, string(e.Kind)),
		attribute.Bool(LabelDryRun, e.DryRun),
		attribute.Bool(LabelCompleted, e.Completed),
	)
	mp.cycleRunsCounter.Add(ctx, 1, attrs)
	mp.cycleGrainsCounter.Add(ctx, e.TotalAmountMoved, attrs)
	mp.cycleWalletsCounter.Add(ctx, int64(e.WalletsAffected), attrs)
	mp.cycleDurationHist.Record(ctx, e.Duration.Seconds(), attrs)
}

// RecordNATSMessagePublished records an exported event
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType events.EventType) {
	if !mp.isEnabled() {
		return
	}

	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, string(eventType)),
		),
	)
}

// Subscribe records every ledger event emitted on the bus
func (mp *MetricsProvider) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventTypeWalletBalanceChanged, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.WalletBalanceChangedEvent); ok {
			mp.RecordTransaction(ctx, e)
		}
	})
	bus.Subscribe(events.EventTypeWalletCreated, func(ctx context.Context, event events.Event) {
		mp.RecordWalletCreated(ctx)
	})
	bus.Subscribe(events.EventTypeCycleCompleted, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.CycleCompletedEvent); ok {
			mp.RecordCycle(ctx, e)
		}
	})
}

// isEnabled checks that instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}
