package service

import (
	"context"

	"grainflow/events"
	"grainflow/models"
)

// recordCycle writes the cycle log in its own unit of work and emits the completion event
// after commit. finish runs inside the same unit of work before the log is written.
// The log is written even when ctx was cancelled mid-run.
func recordCycle(ctx context.Context, uowFactory UnitOfWorkFactory, cycleLog *models.CycleLog, finish func(ctx context.Context, uow UnitOfWork) error) error {
	ctx = context.WithoutCancel(ctx)

	uow := uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return systemError("begin cycle log", err)
	}
	defer uow.Rollback()

	if finish != nil {
		if err := finish(ctx, uow); err != nil {
			return err
		}
	}

	if err := uow.CycleLogRepository().Create(ctx, cycleLog); err != nil {
		return systemError("create cycle log", err)
	}

	uow.EventBus().Publish(events.CycleCompletedEvent{
		CycleLogID:       cycleLog.ID,
		Kind:             cycleLog.Kind,
		WalletsAffected:  cycleLog.WalletsAffected,
		TotalAmountMoved: cycleLog.TotalAmountMoved,
		DryRun:           cycleLog.DryRun,
		Completed:        cycleLog.Completed,
		Duration:         cycleLog.FinishedAt.Sub(cycleLog.StartedAt),
	})

	if err := uow.Commit(); err != nil {
		return systemError("commit cycle log", err)
	}
	return nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
