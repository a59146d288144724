package models

import (
	"time"
)

// SiloID is the primary key of the single silo row
const SiloID = 1

// Silo is the collective pool fed by compost and drained by redistribution
type Silo struct {
	ID             int64     `db:"id"`
	TotalBalance   int64     `db:"total_balance"`
	TotalComposted int64     `db:"total_composted"`
	TotalCycles    int64     `db:"total_cycles"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// SiloStatus is the pool together with the newest log of each cycle kind, dry runs included
type SiloStatus struct {
	Silo                  *Silo     `json:"silo"`
	LastCompostLog        *CycleLog `json:"last_compost_log,omitempty"`
	LastRedistributionLog *CycleLog `json:"last_redistribution_log,omitempty"`
}
