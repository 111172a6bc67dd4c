package courses

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

// Repository reads the course catalog. The catalog is owned by another
// service; the settlement engine never writes to it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a courses repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a course by ID, including soft-deleted and inactive rows.
// Eligibility checks are the caller's concern.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	const q = `SELECT id, seller_id, community_id, title, description, cover_url, is_paid, price, currency, is_active, deleted_at, created_at, updated_at
		FROM courses WHERE id = $1`
	var course models.Course
	err := r.pool.QueryRow(ctx, q, id).Scan(&course.ID, &course.SellerID, &course.CommunityID, &course.Title, &course.Description,
		&course.CoverURL, &course.IsPaid, &course.Price, &course.Currency, &course.IsActive, &course.DeletedAt, &course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns active, non-deleted courses, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.Course, error) {
	const q = `SELECT id, seller_id, community_id, title, description, cover_url, is_paid, price, currency, is_active, deleted_at, created_at, updated_at
		FROM courses WHERE is_active AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Course
	for rows.Next() {
		var course models.Course
		if err := rows.Scan(&course.ID, &course.SellerID, &course.CommunityID, &course.Title, &course.Description,
			&course.CoverURL, &course.IsPaid, &course.Price, &course.Currency, &course.IsActive, &course.DeletedAt, &course.CreatedAt, &course.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, course)
	}
	return list, rows.Err()
}
