package models

import (
	"time"
)

// CycleKind identifies which batch job produced a cycle log
type CycleKind string

const (
	CycleKindCompost        CycleKind = "compost"
	CycleKindRedistribution CycleKind = "redistribution"
)

// CycleLog represents one compost or redistribution invocation
type CycleLog struct {
	ID               int64          `db:"id"`
	Kind             CycleKind      `db:"kind"`
	StartedAt        time.Time      `db:"started_at"`
	FinishedAt       time.Time      `db:"finished_at"`
	WalletsAffected  int            `db:"wallets_affected"`
	TotalAmountMoved int64          `db:"total_amount_moved"`
	DryRun           bool           `db:"dry_run"`
	Completed        bool           `db:"completed"`
	ErrorMessage     *string        `db:"error_message"`
	Summary          map[string]any `db:"summary"`
	CreatedAt        time.Time      `db:"created_at"`
}
