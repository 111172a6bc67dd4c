package models

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment grants a buyer access to a course. Unique per (buyer, course);
// created by upsert-if-absent, never deleted by the settlement engine.
type Enrollment struct {
	ID        uuid.UUID `json:"id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	CourseID  uuid.UUID `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SellerBalance is a seller's running balance in unit currency, updated by
// atomic increments only.
type SellerBalance struct {
	SellerID  uuid.UUID `json:"seller_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
