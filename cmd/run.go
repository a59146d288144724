package cmd

import (
	"context"
	"fmt"
	"time"

	"grainflow/application"
	"grainflow/config"

	log "github.com/sirupsen/logrus"
)

// Run starts the engine with its cycle scheduler and blocks until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	if err := ConfigureLogging(cfg); err != nil {
		return err
	}

	log.WithField("environment", cfg.Environment).Info("Starting grainflow...")

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}

	var stopScheduler func()
	if cfg.SchedulerEnabled {
		scheduler, err := application.NewCycleScheduler(app.Engine, cfg.CompostSchedule, cfg.RedistributionSchedule)
		if err != nil {
			app.Close(context.Background())
			return fmt.Errorf("failed to create cycle scheduler: %w", err)
		}
		if app.Throttle != nil {
			if err := scheduler.AddJob("throttle-cleanup", "@every 10m", func(ctx context.Context) {
				removed := app.Throttle.Cleanup()
				log.WithField("removed", removed).Debug("Idle harvest buckets dropped")
			}); err != nil {
				app.Close(context.Background())
				return err
			}
		}
		stopScheduler = scheduler.Start(ctx)
	} else {
		log.Info("Cycle scheduler disabled, cycles run only on demand")
	}

	log.Infof("Grainflow is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Info("Shutting down grainflow...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if stopScheduler != nil {
		stopScheduler()
	}
	app.Close(shutdownCtx)

	log.Info("Shutdown completed")
	return nil
}
