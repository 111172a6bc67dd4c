package payouts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/balances"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

const uniqueViolation = "23505"

// Repository handles payout and commission persistence. The two rows are
// written in one transaction and never exist independently of each other.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payouts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByOrderCourseSeller returns the payout for the idempotency key, or nil
// when none exists yet.
func (r *Repository) GetByOrderCourseSeller(ctx context.Context, orderID, courseID, sellerID uuid.UUID) (*models.Payout, error) {
	const q = `SELECT id, order_id, course_id, seller_id, buyer_id, currency, commission_rate,
			unit_amount_cents, gross_cents, commission_cents, net_cents,
			unit_amount, gross, commission, net, status, created_at
		FROM payouts WHERE order_id = $1 AND course_id = $2 AND seller_id = $3`
	var p models.Payout
	err := r.pool.QueryRow(ctx, q, orderID, courseID, sellerID).Scan(&p.ID, &p.OrderID, &p.CourseID, &p.SellerID, &p.BuyerID,
		&p.Currency, &p.CommissionRate, &p.UnitAmountCents, &p.GrossCents, &p.CommissionCents, &p.NetCents,
		&p.UnitAmount, &p.Gross, &p.Commission, &p.Net, &p.Status, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePair inserts the payout, its commission record and the seller balance
// increment in one transaction, so the payout uniqueness constraint guards all
// three effects. Returns created=false when another settle already won the
// race: the unique constraint violation is treated as success-already-applied,
// never surfaced as an error.
func (r *Repository) CreatePair(ctx context.Context, p *models.Payout, cr *models.CommissionRecord) (created bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertPayout = `INSERT INTO payouts (order_id, course_id, seller_id, buyer_id, currency, commission_rate,
			unit_amount_cents, gross_cents, commission_cents, net_cents,
			unit_amount, gross, commission, net, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertPayout, p.OrderID, p.CourseID, p.SellerID, p.BuyerID, p.Currency, p.CommissionRate,
		p.UnitAmountCents, p.GrossCents, p.CommissionCents, p.NetCents,
		p.UnitAmount, p.Gross, p.Commission, p.Net, p.Status).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert payout: %w", err)
	}

	const insertCommission = `INSERT INTO commissions (order_id, course_id, seller_id, buyer_id, currency, rate, amount_cents, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertCommission, cr.OrderID, cr.CourseID, cr.SellerID, cr.BuyerID, cr.Currency, cr.Rate, cr.AmountCents, cr.Amount).
		Scan(&cr.ID, &cr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert commission: %w", err)
	}

	if err := balances.IncrementTx(ctx, tx, p.SellerID, p.Net); err != nil {
		return false, fmt.Errorf("increment seller balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// GetCommissionByOrder returns the commission record for an order, or nil.
func (r *Repository) GetCommissionByOrder(ctx context.Context, orderID, courseID uuid.UUID) (*models.CommissionRecord, error) {
	const q = `SELECT id, order_id, course_id, seller_id, buyer_id, currency, rate, amount_cents, amount, created_at
		FROM commissions WHERE order_id = $1 AND course_id = $2`
	var cr models.CommissionRecord
	err := r.pool.QueryRow(ctx, q, orderID, courseID).Scan(&cr.ID, &cr.OrderID, &cr.CourseID, &cr.SellerID, &cr.BuyerID,
		&cr.Currency, &cr.Rate, &cr.AmountCents, &cr.Amount, &cr.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
