package settlement

import (
	"testing"
	"time"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/gateway"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

func TestHydratePaidSession(t *testing.T) {
	o := &models.Order{Status: models.OrderStatusRequiresPayment}
	session := &gateway.CheckoutSession{
		ID:            "cs_1",
		Status:        gateway.SessionStatusComplete,
		PaymentStatus: gateway.SessionPaymentStatusPaid,
		Currency:      "USD",
		AmountTotal:   4999,
		PaymentIntent: gateway.ExpandableIntent{ID: "pi_1"},
	}

	Hydrate(o, session, nil)

	if o.Status != models.OrderStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", o.Status)
	}
	if o.PaidAt == nil {
		t.Fatal("paid_at not set")
	}
	if o.Settlement.SessionRef != "cs_1" || o.Settlement.PaymentRef != "pi_1" {
		t.Fatalf("refs = %q/%q", o.Settlement.SessionRef, o.Settlement.PaymentRef)
	}
	if o.Settlement.Amounts.GrossCents != 4999 || o.Settlement.Amounts.Currency != "usd" {
		t.Fatalf("amounts = %+v", o.Settlement.Amounts)
	}
	if o.Settlement.Amounts.Gross != 49.99 {
		t.Fatalf("gross unit = %v, want 49.99", o.Settlement.Amounts.Gross)
	}
}

func TestHydrateSuccessIsOneWay(t *testing.T) {
	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o := &models.Order{Status: models.OrderStatusSucceeded, PaidAt: &paidAt}
	session := &gateway.CheckoutSession{
		ID:            "cs_1",
		Status:        gateway.SessionStatusExpired,
		PaymentStatus: gateway.SessionPaymentStatusUnpaid,
	}

	Hydrate(o, session, nil)

	if o.Status != models.OrderStatusSucceeded {
		t.Fatalf("status = %q, succeeded must be terminal", o.Status)
	}
	if o.PaidAt == nil || !o.PaidAt.Equal(paidAt) {
		t.Fatalf("paid_at changed: %v", o.PaidAt)
	}
}

func TestHydrateExpiredSessionCancels(t *testing.T) {
	o := &models.Order{Status: models.OrderStatusRequiresPayment}
	session := &gateway.CheckoutSession{ID: "cs_1", Status: gateway.SessionStatusExpired}

	Hydrate(o, session, nil)

	if o.Status != models.OrderStatusCanceled {
		t.Fatalf("status = %q, want canceled", o.Status)
	}
}

func TestHydrateAmountPrecedence(t *testing.T) {
	intent := &gateway.PaymentIntent{
		ID:     "pi_1",
		Status: gateway.IntentStatusSucceeded,
		Amount: 5000,
		LatestCharge: gateway.ExpandableCharge{Charge: &gateway.Charge{
			ID:         "ch_1",
			Paid:       true,
			Amount:     5000,
			Currency:   "usd",
			Created:    1717243200,
			ReceiptURL: "https://pay.example/receipt/1",
			PaymentMethodDetails: &gateway.PaymentMethodDetails{
				Type: "card",
				Card: &gateway.CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
			},
			BalanceTransaction: gateway.ExpandableBalanceTxn{Txn: &gateway.BalanceTransaction{
				ID:       "txn_1",
				Amount:   5000,
				Fee:      175,
				Net:      4825,
				Currency: "usd",
			}},
		}},
	}
	o := &models.Order{Status: models.OrderStatusRequiresPayment}

	Hydrate(o, nil, intent)

	a := o.Settlement.Amounts
	if a.GrossCents != 5000 || a.FeeCents != 175 || a.NetCents != 4825 {
		t.Fatalf("amounts = %+v, want balance txn breakdown", a)
	}
	if o.Settlement.ChargeRef != "ch_1" || o.Settlement.ReceiptURL == "" {
		t.Fatalf("charge detail not captured: %+v", o.Settlement)
	}
	if o.Settlement.Method.Brand != "visa" || o.Settlement.Method.Last4 != "4242" {
		t.Fatalf("method = %+v", o.Settlement.Method)
	}
	if o.PaidAt == nil || o.PaidAt.Unix() != 1717243200 {
		t.Fatalf("paid_at = %v, want charge created time", o.PaidAt)
	}
}

func TestHydrateChargeAmountWithoutTxn(t *testing.T) {
	intent := &gateway.PaymentIntent{
		ID:     "pi_1",
		Status: gateway.IntentStatusSucceeded,
		Amount: 9,
		LatestCharge: gateway.ExpandableCharge{Charge: &gateway.Charge{
			ID:     "ch_1",
			Paid:   true,
			Amount: 1250,
		}},
	}
	o := &models.Order{Status: models.OrderStatusRequiresPayment}

	Hydrate(o, nil, intent)

	a := o.Settlement.Amounts
	if a.GrossCents != 1250 {
		t.Fatalf("gross = %d, charge must win over intent", a.GrossCents)
	}
	if a.NetCents != 1250 {
		t.Fatalf("net = %d, want gross with no fee known", a.NetCents)
	}
}

func TestHydrateMergeKeepsKnownFields(t *testing.T) {
	o := &models.Order{
		Status: models.OrderStatusRequiresPayment,
		Settlement: models.SettlementSnapshot{
			SessionRef: "cs_1",
			PayerEmail: "buyer@example.com",
			Amounts:    models.SettlementAmounts{GrossCents: 4999, NetCents: 4999, Currency: "usd"},
		},
	}
	// bare intent with no amount or email
	Hydrate(o, nil, &gateway.PaymentIntent{ID: "pi_1"})

	if o.Settlement.SessionRef != "cs_1" {
		t.Fatalf("session ref lost: %q", o.Settlement.SessionRef)
	}
	if o.Settlement.PayerEmail != "buyer@example.com" {
		t.Fatalf("payer email lost: %q", o.Settlement.PayerEmail)
	}
	if o.Settlement.Amounts.GrossCents != 4999 {
		t.Fatalf("gross lost: %d", o.Settlement.Amounts.GrossCents)
	}
	if o.Settlement.PaymentRef != "pi_1" {
		t.Fatalf("payment ref not merged: %q", o.Settlement.PaymentRef)
	}
}

func TestApplyManualOutcome(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		o := &models.Order{
			Status:          models.OrderStatusRequiresPayment,
			Currency:        "usd",
			UnitAmountCents: 4999,
		}
		if serr := ApplyManualOutcome(o, "success"); serr != nil {
			t.Fatalf("unexpected error: %v", serr)
		}
		if o.Status != models.OrderStatusSucceeded || o.PaidAt == nil {
			t.Fatalf("order not settled: status=%q paid_at=%v", o.Status, o.PaidAt)
		}
		a := o.Settlement.Amounts
		if a.GrossCents != 4999 || a.FeeCents != 0 || a.NetCents != 4999 {
			t.Fatalf("amounts = %+v, manual path has no fee", a)
		}
	})

	t.Run("failed", func(t *testing.T) {
		o := &models.Order{Status: models.OrderStatusRequiresPayment}
		if serr := ApplyManualOutcome(o, "failed"); serr != nil {
			t.Fatalf("unexpected error: %v", serr)
		}
		if o.Status != models.OrderStatusFailed {
			t.Fatalf("status = %q, want failed", o.Status)
		}
	})

	t.Run("succeeded order ignores later verdicts", func(t *testing.T) {
		o := &models.Order{Status: models.OrderStatusSucceeded}
		if serr := ApplyManualOutcome(o, "failed"); serr != nil {
			t.Fatalf("unexpected error: %v", serr)
		}
		if o.Status != models.OrderStatusSucceeded {
			t.Fatalf("status = %q, succeeded must be terminal", o.Status)
		}
	})

	t.Run("unknown outcome", func(t *testing.T) {
		o := &models.Order{Status: models.OrderStatusRequiresPayment}
		serr := ApplyManualOutcome(o, "maybe")
		if serr == nil || serr.Kind != KindNotPayable {
			t.Fatalf("error = %v, want not_payable", serr)
		}
		if o.Status != models.OrderStatusRequiresPayment {
			t.Fatalf("status changed on invalid outcome: %q", o.Status)
		}
	})
}
