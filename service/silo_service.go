package service

import (
	"context"

	"grainflow/models"
)

// siloService implements the SiloService interface
type siloService struct {
	uowFactory UnitOfWorkFactory
}

// NewSiloService creates a new silo service
func NewSiloService(uowFactory UnitOfWorkFactory) SiloService {
	return &siloService{uowFactory: uowFactory}
}

// Status reads the collective pool and the latest run of each cycle
func (s *siloService) Status(ctx context.Context) (*models.SiloStatus, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin silo status", err)
	}
	defer uow.Rollback()

	silo, err := uow.SiloRepository().Get(ctx)
	if err != nil {
		return nil, systemError("read silo", err)
	}

	lastCompost, err := uow.CycleLogRepository().GetLatest(ctx, models.CycleKindCompost)
	if err != nil {
		return nil, systemError("read latest compost cycle", err)
	}
	lastRedistribution, err := uow.CycleLogRepository().GetLatest(ctx, models.CycleKindRedistribution)
	if err != nil {
		return nil, systemError("read latest redistribution cycle", err)
	}

	return &models.SiloStatus{
		Silo:                  silo,
		LastCompostLog:        lastCompost,
		LastRedistributionLog: lastRedistribution,
	}, nil
}

// RecentCycles lists the newest cycle logs, optionally of one kind
func (s *siloService) RecentCycles(ctx context.Context, kind *models.CycleKind, limit int) ([]*models.CycleLog, error) {
	if limit <= 0 {
		limit = 20
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, systemError("begin recent cycles", err)
	}
	defer uow.Rollback()

	logs, err := uow.CycleLogRepository().List(ctx, kind, limit)
	if err != nil {
		return nil, systemError("list cycle logs", err)
	}
	return logs, nil
}
