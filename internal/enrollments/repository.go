package enrollments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles enrollment persistence. An enrollment is a (buyer, course)
// pair; the unique constraint makes Grant safe under concurrent settles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an enrollments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Grant upserts the (buyer, course) enrollment. Calling it twice has the same
// effect as calling it once.
func (r *Repository) Grant(ctx context.Context, buyerID, courseID uuid.UUID) error {
	const q = `INSERT INTO enrollments (buyer_id, course_id) VALUES ($1, $2)
		ON CONFLICT (buyer_id, course_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, buyerID, courseID)
	return err
}

// Exists reports whether the buyer already holds an enrollment for the course.
func (r *Repository) Exists(ctx context.Context, buyerID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE buyer_id = $1 AND course_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, buyerID, courseID).Scan(&exists)
	return exists, err
}
