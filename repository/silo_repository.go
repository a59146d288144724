package repository

import (
	"context"
	"errors"
	"fmt"

	"grainflow/database"
	"grainflow/models"

	"github.com/jackc/pgx/v5"
)

const siloColumns = `id, total_balance, total_composted, total_cycles, updated_at`

// SiloRepository implements the SiloRepository interface over the single silo row
type SiloRepository struct {
	q Queryable
}

// NewSiloRepository creates a new silo repository
func NewSiloRepository(db *database.DB) *SiloRepository {
	return &SiloRepository{q: db.Pool}
}

// newSiloRepositoryWithTx creates a new silo repository with a transaction
func newSiloRepositoryWithTx(tx Queryable) *SiloRepository {
	return &SiloRepository{q: tx}
}

func (r *SiloRepository) querySilo(ctx context.Context, query string, args ...any) (*models.Silo, error) {
	var silo models.Silo
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&silo.ID,
		&silo.TotalBalance,
		&silo.TotalComposted,
		&silo.TotalCycles,
		&silo.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &silo, nil
}

// Get reads the silo
func (r *SiloRepository) Get(ctx context.Context) (*models.Silo, error) {
	silo, err := r.querySilo(ctx, `SELECT `+siloColumns+` FROM silo WHERE id = $1`, models.SiloID)
	if err != nil {
		return nil, fmt.Errorf("failed to get silo: %w", err)
	}
	if silo == nil {
		return nil, fmt.Errorf("silo row missing, migrations not applied")
	}
	return silo, nil
}

// GetForUpdate locks the silo row for the rest of the transaction
func (r *SiloRepository) GetForUpdate(ctx context.Context) (*models.Silo, error) {
	silo, err := r.querySilo(ctx, `SELECT `+siloColumns+` FROM silo WHERE id = $1 FOR UPDATE`, models.SiloID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock silo: %w", err)
	}
	if silo == nil {
		return nil, fmt.Errorf("silo row missing, migrations not applied")
	}
	return silo, nil
}

// Credit adds composted grains to the pool
func (r *SiloRepository) Credit(ctx context.Context, amount int64) (*models.Silo, error) {
	query := `
		UPDATE silo
		SET total_balance = total_balance + $2,
		    total_composted = total_composted + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + siloColumns

	silo, err := r.querySilo(ctx, query, models.SiloID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit silo with %d: %w", amount, err)
	}
	if silo == nil {
		return nil, fmt.Errorf("silo row missing, migrations not applied")
	}
	return silo, nil
}

// Debit removes grains from the pool if it holds enough
func (r *SiloRepository) Debit(ctx context.Context, amount int64) (*models.Silo, error) {
	query := `
		UPDATE silo
		SET total_balance = total_balance - $2,
		    updated_at = NOW()
		WHERE id = $1 AND total_balance >= $2
		RETURNING ` + siloColumns

	silo, err := r.querySilo(ctx, query, models.SiloID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit silo by %d: %w", amount, err)
	}
	return silo, nil
}

// IncrementCycles counts a completed live compost run
func (r *SiloRepository) IncrementCycles(ctx context.Context) error {
	_, err := r.q.Exec(ctx, `
		UPDATE silo
		SET total_cycles = total_cycles + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, models.SiloID)
	if err != nil {
		return fmt.Errorf("failed to increment silo cycles: %w", err)
	}
	return nil
}
