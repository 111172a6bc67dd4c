package balances

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

// Repository handles seller running balances. Updates are atomic increments;
// the balance row is never read-modified-written by the application.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a balances repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IncrementTx adds amount (unit currency) to the seller's running balance
// inside the caller's transaction, creating the row if absent. The payout
// writer calls this so the credit commits or rolls back with its payout.
func IncrementTx(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID, amount float64) error {
	const q = `INSERT INTO seller_balances (seller_id, balance) VALUES ($1, $2)
		ON CONFLICT (seller_id) DO UPDATE SET balance = seller_balances.balance + EXCLUDED.balance, updated_at = NOW()`
	_, err := tx.Exec(ctx, q, sellerID, amount)
	return err
}

// Get returns the seller's balance, zero-valued when no row exists yet.
func (r *Repository) Get(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	const q = `SELECT seller_id, balance, updated_at FROM seller_balances WHERE seller_id = $1`
	var b models.SellerBalance
	err := r.pool.QueryRow(ctx, q, sellerID).Scan(&b.SellerID, &b.Balance, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return &models.SellerBalance{SellerID: sellerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
