package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment is the canonical record for one provider payment id. Both delivery
// channels upsert the same row; Attempts counts how many times the id was
// observed and is a monitoring signal, not a correctness invariant.
type Payment struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	RazorpayPaymentID string `gorm:"size:191;uniqueIndex;not null" json:"razorpay_payment_id"`
	RazorpayOrderID   string `gorm:"size:191;index" json:"razorpay_order_id,omitempty"`

	OrderID *uint `gorm:"index" json:"order_id,omitempty"`
	UserID  *uint `gorm:"index" json:"user_id,omitempty"`

	AmountPaise int64  `gorm:"not null" json:"amount_paise"`
	Currency    string `gorm:"size:3;default:'INR'" json:"currency"`
	Method      string `gorm:"size:20" json:"method"`                              // card | upi | netbanking | wallet | ...
	Status      string `gorm:"size:20;not null;default:'created'" json:"status"`   // created | authorized | captured | failed | refunded | refund_processing

	// Method-specific sub-records; only the fields for the payment's method
	// are populated.
	CardNetwork string  `gorm:"size:50" json:"card_network,omitempty"`
	CardBrand   string  `gorm:"size:50" json:"card_brand,omitempty"`
	CardLast4   string  `gorm:"size:4" json:"card_last4,omitempty"`
	CardIssuer  string  `gorm:"size:100" json:"card_issuer,omitempty"`
	CardCountry *string `gorm:"size:2" json:"card_country,omitempty"`
	VPA         *string `gorm:"size:255" json:"vpa,omitempty"`  // UPI handle
	Bank        *string `gorm:"size:100" json:"bank,omitempty"` // netbanking
	Wallet      *string `gorm:"size:100" json:"wallet,omitempty"`

	AcquirerData datatypes.JSON `json:"acquirer_data,omitempty"`
	Raw          datatypes.JSON `json:"-"` // exact provider payload, kept for audit

	Refunds []PaymentRefund `gorm:"foreignKey:PaymentID" json:"refunds,omitempty"`

	SignatureVerified bool   `gorm:"default:false" json:"signature_verified"`
	VerificationNotes string `gorm:"size:255" json:"verification_notes,omitempty"`

	IP        string `gorm:"size:45" json:"-"`
	UserAgent string `gorm:"size:512" json:"-"`
	Attempts  int    `gorm:"default:0" json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// PaymentRefund rows are appended, never removed; RefundID is unique so a
// replayed snapshot cannot duplicate a refund event.
type PaymentRefund struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PaymentID   uint      `gorm:"not null;index" json:"-"`
	RefundID    string    `gorm:"size:191;uniqueIndex" json:"refund_id"`
	AmountPaise int64     `json:"amount_paise"`
	Status      string    `gorm:"size:20" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PaymentRefund) TableName() string {
	return "payment_refunds"
}
