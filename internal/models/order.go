package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Order struct {
	ID     uint        `gorm:"primaryKey" json:"id"`
	UserID uint        `gorm:"not null;index" json:"user_id"`
	Items  []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	// Server-computed sum of unit price x quantity, in paise. A client-sent
	// total is only accepted when it matches this exactly.
	TotalPaise int64  `gorm:"not null" json:"total_paise"`
	Address    string `gorm:"size:512;not null" json:"address"`

	RazorpayOrderID   string `gorm:"size:191;index" json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string `gorm:"size:191;index" json:"razorpay_payment_id,omitempty"`
	RazorpaySignature string `gorm:"size:255" json:"-"`

	PaymentCurrency string  `gorm:"size:3;default:'INR'" json:"payment_currency"`
	CardCountry     *string `gorm:"size:2" json:"card_country,omitempty"`

	PaymentStatus string `gorm:"size:20;not null;index;default:'pending'" json:"payment_status"` // pending | paid | failed | refunded
	OrderStatus   string `gorm:"size:20;not null;default:'preparing'" json:"order_status"`       // preparing | ready | delivered | cancelled

	PaymentDetails datatypes.JSON `json:"payment_details,omitempty"`
	RefundDetails  datatypes.JSON `json:"refund_details,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem captures the unit price at order time so later catalog price
// changes cannot alter an existing order's total.
type OrderItem struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	OrderID        uint  `gorm:"not null;index" json:"-"`
	ProductID      uint  `gorm:"not null;index" json:"product_id"`
	Quantity       int   `gorm:"not null" json:"quantity"` // >= 1, validated at creation
	UnitPricePaise int64 `gorm:"not null" json:"unit_price_paise"`

	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
