package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grainflow/service"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// CycleScheduler runs the compost and redistribution cycles on cron schedules.
// A run that is still going when its next tick fires is skipped, never overlapped.
type CycleScheduler struct {
	engine  service.Engine
	cron    *cron.Cron
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCycleScheduler creates a scheduler. Either schedule may be empty to leave that cycle manual.
func NewCycleScheduler(engine service.Engine, compostSchedule, redistributionSchedule string) (*CycleScheduler, error) {
	logger := cronLogger{}
	s := &CycleScheduler{
		engine: engine,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: time.Hour,
		ctx:     context.Background(),
	}

	if compostSchedule != "" {
		if err := s.AddJob("compost", compostSchedule, s.runCompost); err != nil {
			return nil, err
		}
	}
	if redistributionSchedule != "" {
		if err := s.AddJob("redistribution", redistributionSchedule, s.runRedistribution); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// AddJob registers a named job on a standard five-field cron spec or a descriptor like @every 10m
func (s *CycleScheduler) AddJob(name, spec string, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.jobContext(), s.timeout)
		defer cancel()

		start := time.Now()
		log.WithField("job", name).Debug("Scheduled job starting")
		job(ctx)
		log.WithFields(log.Fields{
			"job":      name,
			"duration": time.Since(start),
		}).Debug("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	log.WithFields(log.Fields{
		"job":      name,
		"schedule": spec,
	}).Info("Scheduled job registered")
	return nil
}

// Start begins running jobs. The returned function stops the scheduler and waits for
// running jobs to finish.
func (s *CycleScheduler) Start(ctx context.Context) func() {
	jobCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.ctx = jobCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Cycle scheduler started")

	return func() {
		log.Info("Cycle scheduler shutting down...")
		<-s.cron.Stop().Done()
		cancel()
		log.Info("Cycle scheduler stopped")
	}
}

// NextRuns reports when each registered job fires next
func (s *CycleScheduler) NextRuns() []time.Time {
	entries := s.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		next = append(next, entry.Next)
	}
	return next
}

func (s *CycleScheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *CycleScheduler) runCompost(ctx context.Context) {
	result, err := s.engine.RunCompostCycle(ctx, false)
	if err != nil {
		fields := log.Fields{"error": err}
		if result != nil {
			fields["walletsAffected"] = result.WalletsAffected
			fields["totalComposted"] = result.TotalComposted
		}
		log.WithFields(fields).Error("Scheduled compost cycle failed")
		return
	}

	log.WithFields(log.Fields{
		"walletsAffected": result.WalletsAffected,
		"totalComposted":  result.TotalComposted,
		"cycleLogID":      result.CycleLogID,
	}).Info("Scheduled compost cycle finished")
}

func (s *CycleScheduler) runRedistribution(ctx context.Context) {
	result, err := s.engine.RunRedistributionCycle(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Scheduled redistribution cycle failed")
		return
	}

	log.WithFields(log.Fields{
		"ok":            result.OK,
		"reason":        result.Reason,
		"redistributed": result.Redistributed,
		"perWallet":     result.PerWallet,
		"cycleLogID":    result.CycleLogID,
	}).Info("Scheduled redistribution cycle finished")
}

// cronLogger routes cron's own logging through logrus
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.WithFields(cronFields(keysAndValues)).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithFields(cronFields(keysAndValues)).WithError(err).Error(msg)
}

func cronFields(keysAndValues []interface{}) log.Fields {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
