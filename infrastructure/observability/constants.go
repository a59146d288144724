package observability

// Metric name prefixes
const (
	MetricPrefix = "grainflow"
)

// Metric names
const (
	// Ledger metrics
	LedgerTransactionsTotal = MetricPrefix + ".ledger.transactions_total"
	LedgerGrainsMovedTotal  = MetricPrefix + ".ledger.grains_moved_total"
	WalletsCreatedTotal     = MetricPrefix + ".wallets.created_total"

	// Cycle metrics
	CycleRunsTotal       = MetricPrefix + ".cycles.runs_total"
	CycleGrainsMoved     = MetricPrefix + ".cycles.grains_moved_total"
	CycleWalletsAffected = MetricPrefix + ".cycles.wallets_affected_total"
	CycleDuration        = MetricPrefix + ".cycles.duration"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelDirection = "direction"
	LabelReason    = "reason"
	LabelKind      = "kind"
	LabelDryRun    = "dry_run"
	LabelCompleted = "completed"
	LabelEventType = "event_type"
)
