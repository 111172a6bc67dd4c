package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus for payouts. Only "available" is produced today; the column
// exists for future hold/release semantics.
const (
	PayoutStatusAvailable = "available"
)

// Payout is the seller-facing ledger row for one settled order. At most one
// exists per (order, course, seller); that uniqueness is the idempotency guard
// against double-crediting.
type Payout struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	CourseID        uuid.UUID `json:"course_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	Currency        string    `json:"currency"`
	CommissionRate  float64   `json:"commission_rate"`
	UnitAmountCents int64     `json:"unit_amount_cents"`
	GrossCents      int64     `json:"gross_cents"`
	CommissionCents int64     `json:"commission_cents"`
	NetCents        int64     `json:"net_cents"`
	UnitAmount      float64   `json:"unit_amount"`
	Gross           float64   `json:"gross"`
	Commission      float64   `json:"commission"`
	Net             float64   `json:"net"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// CommissionRecord mirrors the commission portion of a Payout for the platform
// ledger. Unique per (order, course); always written together with its Payout.
type CommissionRecord struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	CourseID    uuid.UUID `json:"course_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	Currency    string    `json:"currency"`
	Rate        float64   `json:"rate"`
	AmountCents int64     `json:"amount_cents"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}
