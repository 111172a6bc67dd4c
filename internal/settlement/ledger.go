package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/money"
)

// PayoutStore persists payout/commission pairs. CreatePair must apply the
// payout, commission and seller balance credit as one unit, guarded by the
// (order, course, seller) uniqueness constraint.
type PayoutStore interface {
	GetByOrderCourseSeller(ctx context.Context, orderID, courseID, sellerID uuid.UUID) (*models.Payout, error)
	CreatePair(ctx context.Context, p *models.Payout, cr *models.CommissionRecord) (created bool, err error)
}

// Ledger computes and records the commission/net split for settled orders.
// SettleOrder is safe to call any number of times per order.
type Ledger struct {
	payouts     PayoutStore
	ratePercent float64
	logger      *zap.Logger
}

// NewLedger creates a payout ledger with the platform commission rate (0-100).
func NewLedger(payouts PayoutStore, ratePercent float64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{payouts: payouts, ratePercent: ratePercent, logger: logger}
}

// SettleOrder records the payout and commission for a succeeded order and
// credits the seller. Re-runs are no-ops: the existing payout is returned with
// created=false and nothing is credited again. Non-succeeded orders are
// ignored entirely.
func (l *Ledger) SettleOrder(ctx context.Context, o *models.Order) (payout *models.Payout, created bool, err error) {
	if o.Status != models.OrderStatusSucceeded {
		return nil, false, nil
	}
	// Self-purchases are rejected at checkout; re-apply the guard for orders
	// that arrive through any other path.
	if o.SellerID == o.BuyerID {
		return nil, false, NewError(KindOwnCourse, "seller cannot be credited for own purchase")
	}

	existing, err := l.payouts.GetByOrderCourseSeller(ctx, o.ID, o.CourseID, o.SellerID)
	if err != nil {
		return nil, false, fmt.Errorf("lookup payout: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	grossCents := o.UnitAmountCents
	commissionCents, netCents := money.SplitCommission(grossCents, l.ratePercent)

	p := &models.Payout{
		OrderID:         o.ID,
		CourseID:        o.CourseID,
		SellerID:        o.SellerID,
		BuyerID:         o.BuyerID,
		Currency:        o.Currency,
		CommissionRate:  l.ratePercent,
		UnitAmountCents: o.UnitAmountCents,
		GrossCents:      grossCents,
		CommissionCents: commissionCents,
		NetCents:        netCents,
		UnitAmount:      money.CentsToUnit(o.UnitAmountCents),
		Gross:           money.CentsToUnit(grossCents),
		Commission:      money.CentsToUnit(commissionCents),
		Net:             money.CentsToUnit(netCents),
		Status:          models.PayoutStatusAvailable,
	}
	cr := &models.CommissionRecord{
		OrderID:     o.ID,
		CourseID:    o.CourseID,
		SellerID:    o.SellerID,
		BuyerID:     o.BuyerID,
		Currency:    o.Currency,
		Rate:        l.ratePercent,
		AmountCents: commissionCents,
		Amount:      money.CentsToUnit(commissionCents),
	}

	ok, err := l.payouts.CreatePair(ctx, p, cr)
	if err != nil {
		return nil, false, fmt.Errorf("create payout pair: %w", err)
	}
	if !ok {
		// lost the race; read back the winner
		winner, err := l.payouts.GetByOrderCourseSeller(ctx, o.ID, o.CourseID, o.SellerID)
		if err != nil {
			return nil, false, fmt.Errorf("lookup payout after race: %w", err)
		}
		return winner, false, nil
	}

	l.logger.Info("order settled",
		zap.String("order_id", o.ID.String()),
		zap.String("seller_id", o.SellerID.String()),
		zap.Int64("gross_cents", grossCents),
		zap.Int64("commission_cents", commissionCents),
		zap.Int64("net_cents", netCents),
	)
	return p, true, nil
}
