package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

// Repository owns the order lifecycle rows. One logical slot exists per
// (buyer, course); a new checkout attempt reuses the slot until it succeeds.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an orders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, buyer_id, course_id, seller_id, course_title, currency, unit_amount, unit_amount_cents, status, settlement, paid_at, deleted_at, created_at, updated_at`

// UpsertPending creates or reuses the order slot for (buyer, course), freezing
// the price snapshot. A succeeded slot is terminal and is never overwritten;
// in that case pgx.ErrNoRows is returned.
func (r *Repository) UpsertPending(ctx context.Context, o *models.Order) error {
	settlement, err := json.Marshal(o.Settlement)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	const q = `INSERT INTO orders (buyer_id, course_id, seller_id, course_title, currency, unit_amount, unit_amount_cents, status, settlement, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (buyer_id, course_id) DO UPDATE SET
			seller_id = EXCLUDED.seller_id,
			course_title = EXCLUDED.course_title,
			currency = EXCLUDED.currency,
			unit_amount = EXCLUDED.unit_amount,
			unit_amount_cents = EXCLUDED.unit_amount_cents,
			status = EXCLUDED.status,
			settlement = EXCLUDED.settlement,
			paid_at = COALESCE(orders.paid_at, EXCLUDED.paid_at),
			deleted_at = NULL,
			updated_at = NOW()
		WHERE orders.status <> 'succeeded'
		RETURNING id, paid_at, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, o.BuyerID, o.CourseID, o.SellerID, o.CourseTitle, o.Currency,
		o.UnitAmount, o.UnitAmountCents, o.Status, settlement, o.PaidAt).
		Scan(&o.ID, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
}

// UpdateSettlement persists the settlement snapshot, status and paid_at.
// Success is a one-way door: a succeeded row never leaves that status, even if
// a stale hydration races this write.
func (r *Repository) UpdateSettlement(ctx context.Context, o *models.Order) error {
	settlement, err := json.Marshal(o.Settlement)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	const q = `UPDATE orders SET
			status = $2,
			settlement = $3,
			paid_at = COALESCE(paid_at, $4),
			updated_at = NOW()
		WHERE id = $1 AND NOT (status = 'succeeded' AND $2 <> 'succeeded')`
	_, err = r.pool.Exec(ctx, q, o.ID, o.Status, settlement, o.PaidAt)
	return err
}

// GetByID returns an order by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND deleted_at IS NULL`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

// GetBySessionRef returns the order whose settlement carries the given
// checkout session reference (gateway session id or manual reference).
func (r *Repository) GetBySessionRef(ctx context.Context, ref string) (*models.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE settlement->>'session_ref' = $1 AND deleted_at IS NULL`
	return r.scanOne(r.pool.QueryRow(ctx, q, ref))
}

// GetByPaymentRef returns the order whose settlement carries the given
// payment-intent reference.
func (r *Repository) GetByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE settlement->>'payment_ref' = $1 AND deleted_at IS NULL`
	return r.scanOne(r.pool.QueryRow(ctx, q, ref))
}

// ListByBuyer returns the buyer's orders joined with a course summary, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.OrderWithCourse, error) {
	const q = `SELECT o.id, o.buyer_id, o.course_id, o.seller_id, o.course_title, o.currency, o.unit_amount, o.unit_amount_cents,
			o.status, o.settlement, o.paid_at, o.deleted_at, o.created_at, o.updated_at,
			COALESCE(c.cover_url, ''), c.community_id
		FROM orders o
		LEFT JOIN courses c ON c.id = o.course_id
		WHERE o.buyer_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, buyerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OrderWithCourse
	for rows.Next() {
		var o models.OrderWithCourse
		var settlement []byte
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.CourseID, &o.SellerID, &o.CourseTitle, &o.Currency, &o.UnitAmount, &o.UnitAmountCents,
			&o.Status, &settlement, &o.PaidAt, &o.DeletedAt, &o.CreatedAt, &o.UpdatedAt,
			&o.CourseCoverURL, &o.CourseCommunityID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(settlement, &o.Settlement); err != nil {
			return nil, fmt.Errorf("unmarshal settlement: %w", err)
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var settlement []byte
	err := row.Scan(&o.ID, &o.BuyerID, &o.CourseID, &o.SellerID, &o.CourseTitle, &o.Currency, &o.UnitAmount, &o.UnitAmountCents,
		&o.Status, &settlement, &o.PaidAt, &o.DeletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settlement, &o.Settlement); err != nil {
		return nil, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return &o, nil
}
