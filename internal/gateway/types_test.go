package gateway

import (
	"encoding/json"
	"testing"
)

func TestExpandableIntentBareID(t *testing.T) {
	var session CheckoutSession
	raw := `{"id":"cs_123","status":"complete","payment_status":"paid","payment_intent":"pi_456"}`
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if session.PaymentIntent.ID != "pi_456" {
		t.Fatalf("intent id = %q, want pi_456", session.PaymentIntent.ID)
	}
	if session.PaymentIntent.Intent != nil {
		t.Fatal("expected no expanded intent for bare id")
	}
}

func TestExpandableIntentExpanded(t *testing.T) {
	var session CheckoutSession
	raw := `{
		"id": "cs_123",
		"payment_intent": {
			"id": "pi_456",
			"status": "succeeded",
			"amount": 4999,
			"latest_charge": {
				"id": "ch_789",
				"paid": true,
				"receipt_url": "https://pay.example.com/r/1",
				"balance_transaction": {"id": "txn_1", "amount": 4999, "fee": 175, "net": 4824}
			}
		}
	}`
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	intent := session.PaymentIntent.Intent
	if intent == nil {
		t.Fatal("expected expanded intent")
	}
	if session.PaymentIntent.ID != "pi_456" || intent.Status != "succeeded" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	charge := intent.LatestCharge.Charge
	if charge == nil || charge.ID != "ch_789" || !charge.Paid {
		t.Fatalf("unexpected charge: %+v", charge)
	}
	txn := charge.BalanceTransaction.Txn
	if txn == nil || txn.Fee != 175 || txn.Net != 4824 {
		t.Fatalf("unexpected balance transaction: %+v", txn)
	}
}

func TestExpandableNull(t *testing.T) {
	var intent PaymentIntent
	raw := `{"id":"pi_1","latest_charge":null}`
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if intent.LatestCharge.ID != "" || intent.LatestCharge.Charge != nil {
		t.Fatalf("expected empty charge reference, got %+v", intent.LatestCharge)
	}
}

func TestExpandableChargeBareID(t *testing.T) {
	var intent PaymentIntent
	raw := `{"id":"pi_1","latest_charge":"ch_2","status":"succeeded"}`
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if intent.LatestCharge.ID != "ch_2" || intent.LatestCharge.Charge != nil {
		t.Fatalf("unexpected charge reference: %+v", intent.LatestCharge)
	}
}
