package settlement

import (
	"strings"
	"time"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/gateway"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/money"
)

// Hydrate merges gateway state into the order's settlement snapshot and
// derives the next lifecycle status. Fields are merged, not replaced, so
// previously known values survive when a source lacks them. Amount precedence
// is balance transaction > payment detail > session > existing values.
//
// Success is a one-way door: once an order is succeeded, no later input moves
// it to any other status.
func Hydrate(o *models.Order, session *gateway.CheckoutSession, intent *gateway.PaymentIntent) {
	snap := &o.Settlement

	if session != nil {
		if snap.SessionRef == "" {
			snap.SessionRef = session.ID
		}
		if session.PaymentIntent.ID != "" {
			snap.PaymentRef = session.PaymentIntent.ID
		}
		if intent == nil {
			intent = session.PaymentIntent.Intent
		}
		if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
			snap.PayerEmail = session.CustomerDetails.Email
		}
	}

	var charge *gateway.Charge
	if intent != nil {
		if intent.ID != "" {
			snap.PaymentRef = intent.ID
		}
		charge = intent.LatestCharge.Charge
		if charge == nil && intent.LatestCharge.ID != "" {
			snap.ChargeRef = intent.LatestCharge.ID
		}
		if intent.ReceiptEmail != "" && snap.PayerEmail == "" {
			snap.PayerEmail = intent.ReceiptEmail
		}
	}

	var txn *gateway.BalanceTransaction
	if charge != nil {
		snap.ChargeRef = charge.ID
		if charge.ReceiptURL != "" {
			snap.ReceiptURL = charge.ReceiptURL
		}
		if charge.BillingDetails != nil && charge.BillingDetails.Email != "" {
			snap.PayerEmail = charge.BillingDetails.Email
		}
		if pmd := charge.PaymentMethodDetails; pmd != nil {
			summary := models.PaymentMethodSummary{Type: pmd.Type}
			if pmd.Card != nil {
				summary.Brand = pmd.Card.Brand
				summary.Last4 = pmd.Card.Last4
				summary.ExpMonth = pmd.Card.ExpMonth
				summary.ExpYear = pmd.Card.ExpYear
			}
			snap.Method = summary
		}
		txn = charge.BalanceTransaction.Txn
	}

	hydrateAmounts(&snap.Amounts, session, intent, charge, txn)

	paid := (intent != nil && intent.Status == gateway.IntentStatusSucceeded) ||
		(charge != nil && charge.Paid) ||
		(session != nil && session.PaymentStatus == gateway.SessionPaymentStatusPaid)

	switch {
	case o.Status == models.OrderStatusSucceeded:
		// terminal; later inputs never downgrade it
	case paid:
		o.Status = models.OrderStatusSucceeded
		if o.PaidAt == nil {
			o.PaidAt = settledAt(charge)
		}
	case (session != nil && session.Status == gateway.SessionStatusExpired) ||
		(intent != nil && intent.Status == gateway.IntentStatusCanceled):
		o.Status = models.OrderStatusCanceled
	case o.Status != models.OrderStatusFailed && o.Status != models.OrderStatusCanceled:
		o.Status = models.OrderStatusRequiresPayment
	}
}

func hydrateAmounts(a *models.SettlementAmounts, session *gateway.CheckoutSession, intent *gateway.PaymentIntent, charge *gateway.Charge, txn *gateway.BalanceTransaction) {
	switch {
	case txn != nil:
		a.GrossCents = txn.Amount
		a.FeeCents = txn.Fee
		a.NetCents = txn.Net
		if txn.Currency != "" {
			a.Currency = strings.ToLower(txn.Currency)
		}
	case charge != nil && charge.Amount > 0:
		a.GrossCents = charge.Amount
		a.NetCents = a.GrossCents - a.FeeCents
		if charge.Currency != "" {
			a.Currency = strings.ToLower(charge.Currency)
		}
	case intent != nil && intent.Amount > 0:
		a.GrossCents = intent.Amount
		a.NetCents = a.GrossCents - a.FeeCents
		if intent.Currency != "" {
			a.Currency = strings.ToLower(intent.Currency)
		}
	case session != nil && session.AmountTotal > 0:
		a.GrossCents = session.AmountTotal
		a.NetCents = a.GrossCents - a.FeeCents
		if session.Currency != "" {
			a.Currency = strings.ToLower(session.Currency)
		}
	}
	// unit fields are derived, never stored independently
	a.Gross = money.CentsToUnit(a.GrossCents)
	a.Fee = money.CentsToUnit(a.FeeCents)
	a.Net = money.CentsToUnit(a.NetCents)
}

func settledAt(charge *gateway.Charge) *time.Time {
	if charge != nil && charge.Created > 0 {
		t := time.Unix(charge.Created, 0).UTC()
		return &t
	}
	now := time.Now().UTC()
	return &now
}

// ApplyManualOutcome applies an operator-supplied outcome to a
// manual-verification order, with the same one-way-success rule as Hydrate.
// No fee breakdown exists on this path, so net defaults to gross.
func ApplyManualOutcome(o *models.Order, outcome string) *Error {
	var status string
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "success", "succeeded", "paid":
		status = models.OrderStatusSucceeded
	case "failed", "failure":
		status = models.OrderStatusFailed
	case "canceled", "cancelled":
		status = models.OrderStatusCanceled
	default:
		return NewError(KindNotPayable, "unknown outcome: "+outcome)
	}

	if o.Status == models.OrderStatusSucceeded {
		return nil
	}
	o.Status = status
	if status == models.OrderStatusSucceeded {
		if o.PaidAt == nil {
			now := time.Now().UTC()
			o.PaidAt = &now
		}
		a := &o.Settlement.Amounts
		a.Currency = o.Currency
		a.GrossCents = o.UnitAmountCents
		a.FeeCents = 0
		a.NetCents = a.GrossCents
		a.Gross = money.CentsToUnit(a.GrossCents)
		a.Fee = 0
		a.Net = money.CentsToUnit(a.NetCents)
	}
	return nil
}
