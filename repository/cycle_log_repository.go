package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"grainflow/database"
	"grainflow/models"

	"github.com/jackc/pgx/v5"
)

const cycleLogColumns = `
	id, kind, started_at, finished_at, wallets_affected, total_amount_moved,
	dry_run, completed, error_message, summary, created_at`

// CycleLogRepository implements the CycleLogRepository interface
type CycleLogRepository struct {
	q Queryable
}

// NewCycleLogRepository creates a new cycle log repository
func NewCycleLogRepository(db *database.DB) *CycleLogRepository {
	return &CycleLogRepository{q: db.Pool}
}

// newCycleLogRepositoryWithTx creates a new cycle log repository with a transaction
func newCycleLogRepositoryWithTx(tx Queryable) *CycleLogRepository {
	return &CycleLogRepository{q: tx}
}

func scanCycleLog(row pgx.Row) (*models.CycleLog, error) {
	var cycleLog models.CycleLog
	var summaryJSON []byte

	err := row.Scan(
		&cycleLog.ID,
		&cycleLog.Kind,
		&cycleLog.StartedAt,
		&cycleLog.FinishedAt,
		&cycleLog.WalletsAffected,
		&cycleLog.TotalAmountMoved,
		&cycleLog.DryRun,
		&cycleLog.Completed,
		&cycleLog.ErrorMessage,
		&summaryJSON,
		&cycleLog.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &cycleLog.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cycle summary: %w", err)
		}
	}

	return &cycleLog, nil
}

// Create inserts a cycle log record
func (r *CycleLogRepository) Create(ctx context.Context, cycleLog *models.CycleLog) error {
	var summaryJSON []byte
	if len(cycleLog.Summary) > 0 {
		var err error
		summaryJSON, err = json.Marshal(cycleLog.Summary)
		if err != nil {
			return fmt.Errorf("failed to marshal cycle summary: %w", err)
		}
	}

	query := `
		INSERT INTO cycle_logs
		(kind, started_at, finished_at, wallets_affected, total_amount_moved,
		 dry_run, completed, error_message, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		cycleLog.Kind,
		cycleLog.StartedAt,
		cycleLog.FinishedAt,
		cycleLog.WalletsAffected,
		cycleLog.TotalAmountMoved,
		cycleLog.DryRun,
		cycleLog.Completed,
		cycleLog.ErrorMessage,
		summaryJSON,
	).Scan(&cycleLog.ID, &cycleLog.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s cycle log: %w", cycleLog.Kind, err)
	}

	return nil
}

// GetLatest returns the most recent cycle log of a kind
func (r *CycleLogRepository) GetLatest(ctx context.Context, kind models.CycleKind) (*models.CycleLog, error) {
	query := `SELECT` + cycleLogColumns + `
		FROM cycle_logs
		WHERE kind = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1`

	cycleLog, err := scanCycleLog(r.q.QueryRow(ctx, query, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s cycle log: %w", kind, err)
	}
	return cycleLog, nil
}

// List returns the newest cycle logs first. A nil kind lists both kinds.
func (r *CycleLogRepository) List(ctx context.Context, kind *models.CycleKind, limit int) ([]*models.CycleLog, error) {
	query := `SELECT` + cycleLogColumns + `
		FROM cycle_logs
		WHERE ($1::text IS NULL OR kind = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2`

	var kindArg *string
	if kind != nil {
		k := string(*kind)
		kindArg = &k
	}

	rows, err := r.q.Query(ctx, query, kindArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.CycleLog
	for rows.Next() {
		cycleLog, err := scanCycleLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle log: %w", err)
		}
		logs = append(logs, cycleLog)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle logs: %w", err)
	}

	return logs, nil
}
