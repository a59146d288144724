package cmd

import (
	"context"
	"fmt"
	"time"

	"grainflow/config"
	"grainflow/database"
	"grainflow/events"
	"grainflow/infrastructure"
	"grainflow/infrastructure/observability"
	"grainflow/repository"
	"grainflow/service"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const eventDrainTimeout = 10 * time.Second

// App holds the wired engine and the resources it owns
type App struct {
	Config   *config.Config
	DB       *database.DB
	EventBus *events.Bus
	Engine   service.Engine
	Wallets  service.WalletService
	Silo     service.SiloService
	Throttle *infrastructure.RateLimitThrottle
	Metrics  *observability.MetricsProvider

	redis *redis.Client
	nats  *infrastructure.NATSClient
}

// Build connects every dependency and wires the engine
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db
	log.Info("Database connection established successfully")

	app.EventBus = events.NewBus()

	app.Metrics = observability.NewMetricsProvider(cfg)
	if err := app.Metrics.Initialize(ctx); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	app.Metrics.Subscribe(app.EventBus)

	var cache service.BalanceCache
	if cfg.RedisAddr != "" {
		client, err := infrastructure.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		app.redis = client
		redisCache := infrastructure.NewRedisBalanceCache(client, cfg.BalanceCacheTTL)
		app.EventBus.SubscribeSync(events.EventTypeWalletBalanceChanged, service.RefreshOnBalanceChange(redisCache))
		cache = redisCache
	} else {
		log.Info("REDIS_ADDR not set, balance cache disabled")
	}

	if cfg.NATSServers != "" {
		client := infrastructure.NewNATSClient(cfg.NATSServers)
		if err := client.Connect(ctx); err != nil {
			app.Close(ctx)
			return nil, err
		}
		app.nats = client

		mapper := infrastructure.NewEventSubjectMapper()
		if err := infrastructure.EnsureStream(client, mapper); err != nil {
			app.Close(ctx)
			return nil, err
		}

		publisher := infrastructure.NewNATSEventPublisher(client, mapper)
		publisher.OnPublished(app.Metrics.RecordNATSMessagePublished)
		app.EventBus.SubscribeAll(publisher.Handler())
	} else {
		log.Info("NATS_SERVERS not set, event export disabled")
	}

	var throttle service.HarvestThrottle
	if cfg.HarvestRefill > 0 {
		app.Throttle = infrastructure.NewRateLimitThrottle(cfg.HarvestBurst, cfg.HarvestRefill)
		throttle = app.Throttle
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, app.EventBus)

	app.Wallets = service.NewWalletService(uowFactory, cache)
	app.Silo = service.NewSiloService(uowFactory)
	app.Engine = service.NewEngine(
		app.Wallets,
		service.NewHarvestService(uowFactory, cfg.HarvestPolicy(), service.NewGovernanceGuard(cfg.GovernancePolicy()), throttle),
		service.NewSpendService(uowFactory),
		service.NewCompostService(uowFactory, cfg.CompostPolicy()),
		service.NewRedistributionService(uowFactory, cfg.RedistributionPolicy()),
	)

	log.WithFields(log.Fields{
		"cache":    cache != nil,
		"nats":     app.nats != nil,
		"throttle": throttle != nil,
	}).Info("Engine initialized")

	return app, nil
}

// Close releases everything Build opened. Safe on a partially built app.
func (a *App) Close(ctx context.Context) {
	if a.EventBus != nil {
		waitForEvents(ctx, a.EventBus, eventDrainTimeout)
	}

	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS connection")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Error closing Redis connection")
		}
	}
	if a.Metrics != nil {
		if err := a.Metrics.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Error shutting down metrics")
		}
	}
	if a.DB != nil {
		log.Info("Closing database connection...")
		a.DB.Close()
	}
}

// waitForEvents lets async handlers such as the NATS export finish before their
// connections are closed
func waitForEvents(ctx context.Context, bus *events.Bus, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := bus.Wait(ctx); err != nil {
		log.WithError(err).Warn("Event handlers still running at shutdown")
	}
}
