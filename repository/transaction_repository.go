package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grainflow/database"
	"grainflow/models"
)

// TransactionRepository implements the TransactionRepository interface over grain_transactions
type TransactionRepository struct {
	q Queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository with a transaction
func newTransactionRepositoryWithTx(tx Queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Append inserts a journal entry. A zero CreatedAt is stamped by the database.
func (r *TransactionRepository) Append(ctx context.Context, tx *models.Transaction) error {
	var metadataJSON []byte
	if len(tx.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction metadata: %w", err)
		}
	}

	var createdAt *time.Time
	if !tx.CreatedAt.IsZero() {
		createdAt = &tx.CreatedAt
	}

	query := `
		INSERT INTO grain_transactions (wallet_id, amount, direction, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		tx.WalletID,
		tx.Amount,
		tx.Direction,
		tx.Reason,
		metadataJSON,
		createdAt,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append %s %s transaction for wallet %d: %w", tx.Direction, tx.Reason, tx.WalletID, err)
	}

	return nil
}

// SumEarnedSince totals EARN entries of one reason since a point in time
func (r *TransactionRepository) SumEarnedSince(ctx context.Context, walletID int64, reason models.Reason, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM grain_transactions
		WHERE wallet_id = $1
		  AND reason = $2
		  AND direction = 'EARN'
		  AND created_at >= $3
	`

	var total int64
	if err := r.q.QueryRow(ctx, query, walletID, reason, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum %s earnings for wallet %d: %w", reason, walletID, err)
	}
	return total, nil
}

// GetByWallet returns the newest entries first
func (r *TransactionRepository) GetByWallet(ctx context.Context, walletID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, direction, reason, metadata, created_at
		FROM grain_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for wallet %d: %w", walletID, err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var metadataJSON []byte

		if err := rows.Scan(
			&tx.ID,
			&tx.WalletID,
			&tx.Amount,
			&tx.Direction,
			&tx.Reason,
			&metadataJSON,
			&tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
			}
		}

		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// SumByDirection totals every EARN and SPEND entry of a wallet
func (r *TransactionRepository) SumByDirection(ctx context.Context, walletID int64) (int64, int64, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'EARN'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = 'SPEND'), 0)
		FROM grain_transactions
		WHERE wallet_id = $1
	`

	var earned, spent int64
	if err := r.q.QueryRow(ctx, query, walletID).Scan(&earned, &spent); err != nil {
		return 0, 0, fmt.Errorf("failed to sum transactions for wallet %d: %w", walletID, err)
	}
	return earned, spent, nil
}
