package razorpay

import "encoding/json"

// Payment methods as reported by Razorpay.
const (
	MethodCard       = "card"
	MethodUPI        = "upi"
	MethodNetbanking = "netbanking"
	MethodWallet     = "wallet"
)

// OrderHandle is the gateway-side order opened against a local order.
type OrderHandle struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"` // paise
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Card carries issuer details for card payments. Country may be empty:
// Razorpay omits it for many domestic issuers.
type Card struct {
	Network string `json:"network"`
	Brand   string `json:"brand"`
	Last4   string `json:"last4"`
	Issuer  string `json:"issuer"`
	Country string `json:"country"`
}

// Refund is one refund event against a payment.
type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"` // unix seconds
}

// PaymentSnapshot is the canonical payment object as reported by the
// gateway, either fetched via the API or carried in a webhook payload. The
// method-specific sub-fields (Card, VPA, Bank, Wallet) are populated per
// Method; Raw retains the exact bytes for audit.
type PaymentSnapshot struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	Amount       int64           `json:"amount"` // paise
	Currency     string          `json:"currency"`
	Method       string          `json:"method"`
	Status       string          `json:"status"`
	Card         *Card           `json:"card,omitempty"`
	VPA          string          `json:"vpa,omitempty"`
	Bank         string          `json:"bank,omitempty"`
	Wallet       string          `json:"wallet,omitempty"`
	AcquirerData json.RawMessage `json:"acquirer_data,omitempty"`
	Refunds      []Refund        `json:"refunds,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type paymentSnapshotAlias PaymentSnapshot

// UnmarshalJSON keeps a copy of the original bytes in Raw.
func (s *PaymentSnapshot) UnmarshalJSON(data []byte) error {
	var a paymentSnapshotAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = PaymentSnapshot(a)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// WebhookEvent is the envelope Razorpay POSTs to the webhook endpoint.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentSnapshot `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// Events that drive order reconciliation.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)
