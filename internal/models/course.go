package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is a catalog entry. The catalog is owned elsewhere; this engine only
// reads it (title, price, owner) when starting a checkout.
type Course struct {
	ID          uuid.UUID  `json:"id"`
	SellerID    *uuid.UUID `json:"seller_id,omitempty"`
	CommunityID *uuid.UUID `json:"community_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CoverURL    string     `json:"cover_url,omitempty"`
	IsPaid      bool       `json:"is_paid"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	IsActive    bool       `json:"is_active"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
