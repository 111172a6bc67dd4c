package gateway

import (
	"encoding/json"
)

// The gateway returns either a bare identifier or a nested object for several
// reference fields, depending on which expansions were requested. Each
// expandable type resolves that union once at unmarshal time; only the typed
// struct travels further into the engine.

// ExpandableIntent is a payment-intent reference: a bare id or an expanded object.
type ExpandableIntent struct {
	ID     string
	Intent *PaymentIntent
}

// UnmarshalJSON accepts a JSON string (id) or object (expanded intent).
func (e *ExpandableIntent) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var intent PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return err
	}
	e.Intent = &intent
	e.ID = intent.ID
	return nil
}

// ExpandableCharge is a charge reference: a bare id or an expanded object.
type ExpandableCharge struct {
	ID     string
	Charge *Charge
}

func (e *ExpandableCharge) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var ch Charge
	if err := json.Unmarshal(data, &ch); err != nil {
		return err
	}
	e.Charge = &ch
	e.ID = ch.ID
	return nil
}

// ExpandableBalanceTxn is a balance-transaction reference: a bare id or an
// expanded object carrying the authoritative fee breakdown.
type ExpandableBalanceTxn struct {
	ID  string
	Txn *BalanceTransaction
}

func (e *ExpandableBalanceTxn) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var txn BalanceTransaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return err
	}
	e.Txn = &txn
	e.ID = txn.ID
	return nil
}

// CheckoutSession statuses reported by the gateway.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	SessionPaymentStatusPaid   = "paid"
	SessionPaymentStatusUnpaid = "unpaid"
)

// PaymentIntent statuses reported by the gateway.
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

// CheckoutSession is a hosted checkout session.
type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url,omitempty"`
	Status          string            `json:"status,omitempty"`
	PaymentStatus   string            `json:"payment_status,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	AmountTotal     int64             `json:"amount_total,omitempty"`
	PaymentIntent   ExpandableIntent  `json:"payment_intent,omitempty"`
	CustomerDetails *CustomerDetails  `json:"customer_details,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CustomerDetails carries the payer contact info collected by the session.
type CustomerDetails struct {
	Email string `json:"email,omitempty"`
}

// PaymentIntent is the gateway's payment record for a session.
type PaymentIntent struct {
	ID           string           `json:"id"`
	Status       string           `json:"status,omitempty"`
	Amount       int64            `json:"amount,omitempty"`
	Currency     string           `json:"currency,omitempty"`
	ReceiptEmail string           `json:"receipt_email,omitempty"`
	LatestCharge ExpandableCharge `json:"latest_charge,omitempty"`
}

// Charge is one capture attempt under a payment intent.
type Charge struct {
	ID                   string                `json:"id"`
	Status               string                `json:"status,omitempty"`
	Paid                 bool                  `json:"paid,omitempty"`
	Amount               int64                 `json:"amount,omitempty"`
	Currency             string                `json:"currency,omitempty"`
	Created              int64                 `json:"created,omitempty"`
	ReceiptURL           string                `json:"receipt_url,omitempty"`
	BillingDetails       *CustomerDetails      `json:"billing_details,omitempty"`
	PaymentMethodDetails *PaymentMethodDetails `json:"payment_method_details,omitempty"`
	BalanceTransaction   ExpandableBalanceTxn  `json:"balance_transaction,omitempty"`
}

// PaymentMethodDetails describes the instrument used, for display only.
type PaymentMethodDetails struct {
	Type string       `json:"type,omitempty"`
	Card *CardDetails `json:"card,omitempty"`
}

// CardDetails is the display-only card summary.
type CardDetails struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// BalanceTransaction is the settlement-level money movement: the most
// authoritative source for gross, fee and net.
type BalanceTransaction struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount,omitempty"`
	Fee      int64  `json:"fee,omitempty"`
	Net      int64  `json:"net,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Event is an asynchronous gateway notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}
