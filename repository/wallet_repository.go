package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grainflow/database"
	"grainflow/models"

	"github.com/jackc/pgx/v5"
)

const walletColumns = `
	id, user_id, balance, total_harvested, total_planted, total_composted,
	last_activity_at, last_composted_at, version, created_at, updated_at`

// WalletRepository implements the WalletRepository interface
type WalletRepository struct {
	q Queryable
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{q: db.Pool}
}

// newWalletRepositoryWithTx creates a new wallet repository with a transaction
func newWalletRepositoryWithTx(tx Queryable) *WalletRepository {
	return &WalletRepository{q: tx}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.TotalHarvested,
		&w.TotalPlanted,
		&w.TotalComposted,
		&w.LastActivityAt,
		&w.LastCompostedAt,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// queryWallet runs a single-row query and maps pgx.ErrNoRows to nil
func (r *WalletRepository) queryWallet(ctx context.Context, query string, args ...any) (*models.Wallet, error) {
	wallet, err := scanWallet(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return wallet, err
}

func (r *WalletRepository) queryWallets(ctx context.Context, query string, args ...any) ([]*models.Wallet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

// GetByUserID retrieves a wallet by its owner
func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	query := `SELECT` + walletColumns + ` FROM wallets WHERE user_id = $1`

	wallet, err := r.queryWallet(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet for user %d: %w", userID, err)
	}
	return wallet, nil
}

// GetOrCreateForUpdate inserts the wallet if missing and locks it.
// The insert is a no-op under concurrency so two callers never create two wallets.
func (r *WalletRepository) GetOrCreateForUpdate(ctx context.Context, userID int64) (*models.Wallet, bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO wallets (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet for user %d: %w", userID, err)
	}

	query := `SELECT` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	wallet, err := r.queryWallet(ctx, query, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock wallet for user %d: %w", userID, err)
	}
	if wallet == nil {
		return nil, false, fmt.Errorf("wallet for user %d vanished after upsert", userID)
	}

	return wallet, tag.RowsAffected() == 1, nil
}

// GetForUpdate locks a wallet by id
func (r *WalletRepository) GetForUpdate(ctx context.Context, walletID int64) (*models.Wallet, error) {
	query := `SELECT` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`

	wallet, err := r.queryWallet(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet %d: %w", walletID, err)
	}
	return wallet, nil
}

// ApplyHarvest credits a harvest to the wallet
func (r *WalletRepository) ApplyHarvest(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $2,
		    total_harvested = total_harvested + $2,
		    last_activity_at = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING` + walletColumns

	wallet, err := r.queryWallet(ctx, query, walletID, amount, at)
	if err != nil {
		return nil, fmt.Errorf("failed to apply harvest of %d to wallet %d: %w", amount, walletID, err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet %d not found", walletID)
	}
	return wallet, nil
}

// ApplySpend debits a spend from the wallet if the balance covers it
func (r *WalletRepository) ApplySpend(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = balance - $2,
		    total_planted = total_planted + $2,
		    last_activity_at = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND balance >= $2
		RETURNING` + walletColumns

	wallet, err := r.queryWallet(ctx, query, walletID, amount, at)
	if err != nil {
		return nil, fmt.Errorf("failed to apply spend of %d to wallet %d: %w", amount, walletID, err)
	}
	return wallet, nil
}

// ApplyCompost debits decay from the wallet if the balance covers it
func (r *WalletRepository) ApplyCompost(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = balance - $2,
		    total_composted = total_composted + $2,
		    last_composted_at = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND balance >= $2
		RETURNING` + walletColumns

	wallet, err := r.queryWallet(ctx, query, walletID, amount, at)
	if err != nil {
		return nil, fmt.Errorf("failed to apply compost of %d to wallet %d: %w", amount, walletID, err)
	}
	return wallet, nil
}

// ApplyRedistribution credits a silo share to the wallet
func (r *WalletRepository) ApplyRedistribution(ctx context.Context, walletID int64, amount int64) (*models.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $2,
		    total_harvested = total_harvested + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING` + walletColumns

	wallet, err := r.queryWallet(ctx, query, walletID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to apply redistribution of %d to wallet %d: %w", amount, walletID, err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet %d not found", walletID)
	}
	return wallet, nil
}

// ListCompostCandidates returns wallets whose inactivity anchor is at or before inactiveBefore
func (r *WalletRepository) ListCompostCandidates(ctx context.Context, inactiveBefore time.Time, minimumBalance int64) ([]*models.Wallet, error) {
	query := `SELECT` + walletColumns + `
		FROM wallets
		WHERE GREATEST(last_activity_at, COALESCE(last_composted_at, last_activity_at)) <= $1
		  AND balance >= $2
		  AND balance > 0
		ORDER BY id`

	wallets, err := r.queryWallets(ctx, query, inactiveBefore, minimumBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to list compost candidates: %w", err)
	}
	return wallets, nil
}

// ListRedistributionEligible returns wallets with enough lifetime harvest
func (r *WalletRepository) ListRedistributionEligible(ctx context.Context, minimumActivity int64) ([]*models.Wallet, error) {
	if minimumActivity < 1 {
		minimumActivity = 1
	}

	query := `SELECT` + walletColumns + `
		FROM wallets
		WHERE total_harvested >= $1
		ORDER BY id`

	wallets, err := r.queryWallets(ctx, query, minimumActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to list redistribution eligible wallets: %w", err)
	}
	return wallets, nil
}
