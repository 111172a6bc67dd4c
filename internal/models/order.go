package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutMethod selects how an order is settled.
const (
	CheckoutMethodGateway = "gateway"
	CheckoutMethodManual  = "manual"
)

// OrderStatus lifecycle. Succeeded is terminal; nothing moves an order out of it.
const (
	OrderStatusRequiresPayment = "requires_payment"
	OrderStatusSucceeded       = "succeeded"
	OrderStatusCanceled        = "canceled"
	OrderStatusFailed          = "failed"
)

// PaymentMethodSummary is display-only card/channel info. Never used for authorization.
type PaymentMethodSummary struct {
	Type     string `json:"type,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// SettlementAmounts is the money breakdown learned from the gateway.
// Cents fields are authoritative; unit fields are always cents/100.
type SettlementAmounts struct {
	Currency   string  `json:"currency,omitempty"`
	Gross      float64 `json:"gross,omitempty"`
	GrossCents int64   `json:"gross_cents,omitempty"`
	Fee        float64 `json:"fee,omitempty"`
	FeeCents   int64   `json:"fee_cents,omitempty"`
	Net        float64 `json:"net,omitempty"`
	NetCents   int64   `json:"net_cents,omitempty"`
}

// SettlementSnapshot is everything an order has learned from the external
// payment channel. For manual orders SessionRef holds the human-shareable
// reference and Method.Type is "manual".
type SettlementSnapshot struct {
	SessionRef string               `json:"session_ref,omitempty"`
	PaymentRef string               `json:"payment_ref,omitempty"`
	ChargeRef  string               `json:"charge_ref,omitempty"`
	ReceiptURL string               `json:"receipt_url,omitempty"`
	PayerEmail string               `json:"payer_email,omitempty"`
	Method     PaymentMethodSummary `json:"method,omitempty"`
	Amounts    SettlementAmounts    `json:"amounts,omitempty"`
}

// Order is one purchase attempt for a (buyer, course) pair. UnitAmountCents is
// frozen at creation and is the single source of truth for what was charged.
type Order struct {
	ID              uuid.UUID          `json:"id"`
	BuyerID         uuid.UUID          `json:"buyer_id"`
	CourseID        uuid.UUID          `json:"course_id"`
	SellerID        uuid.UUID          `json:"seller_id"`
	CourseTitle     string             `json:"course_title"`
	Currency        string             `json:"currency"`
	UnitAmount      float64            `json:"unit_amount"`
	UnitAmountCents int64              `json:"unit_amount_cents"`
	Status          string             `json:"status"`
	Settlement      SettlementSnapshot `json:"settlement"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	DeletedAt       *time.Time         `json:"deleted_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// OrderWithCourse joins an order with a denormalized course summary for listings.
type OrderWithCourse struct {
	Order
	CourseCoverURL    string     `json:"course_cover_url,omitempty"`
	CourseCommunityID *uuid.UUID `json:"course_community_id,omitempty"`
}
