package repository

import (
	"bazari/internal/domain"
	"bazari/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(o *models.Order) error {
	return r.db.Create(o).Error
}

func (r *OrderRepository) GetByID(id uint) (*models.Order, error) {
	var o models.Order
	if err := r.db.Preload("Items").First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetByRazorpayOrderID(ref string) (*models.Order, error) {
	var o models.Order
	if err := r.db.Where("razorpay_order_id = ?", ref).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Preload("Items.Product").Where("user_id = ?", userID).
		Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) ListAll() ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Preload("Items").Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.Order{}).Count(&n).Error
	return n, err
}

// AttachGatewayOrder stores the provider order id once the gateway order is
// opened.
func (r *OrderRepository) AttachGatewayOrder(id uint, razorpayOrderID string) error {
	return r.db.Model(&models.Order{}).Where("id = ?", id).
		Update("razorpay_order_id", razorpayOrderID).Error
}

// MarkPaid transitions payment_status pending->paid and attaches the payment
// identity. The WHERE guard makes the write conditional: a replay or a lost
// race returns false with no rows touched.
func (r *OrderRepository) MarkPaid(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, domain.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status":      domain.PaymentPaid,
			"razorpay_payment_id": paymentID,
			"razorpay_signature":  signature,
			"payment_currency":    currency,
			"card_country":        cardCountry,
			"payment_details":     details,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkFailed transitions payment_status pending->failed, attaching the
// payment identity. The rejection reason lives on the payment record.
func (r *OrderRepository) MarkFailed(id uint, paymentID string) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, domain.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status":      domain.PaymentFailed,
			"razorpay_payment_id": paymentID,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkRefunded transitions payment_status paid->refunded; used by the
// operator-triggered refund flow, never automatically after acceptance.
func (r *OrderRepository) MarkRefunded(id uint, details datatypes.JSON) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, domain.PaymentPaid).
		Updates(map[string]interface{}{
			"payment_status": domain.PaymentRefunded,
			"refund_details": details,
		})
	return res.RowsAffected > 0, res.Error
}

// SetRefundDetails records the refund result blob without touching status
// (used when the reject path refunds a payment against a failed order).
func (r *OrderRepository) SetRefundDetails(id uint, details datatypes.JSON) error {
	return r.db.Model(&models.Order{}).Where("id = ?", id).
		Update("refund_details", details).Error
}

// SetOrderStatus advances the fulfillment status (admin operational flow).
func (r *OrderRepository) SetOrderStatus(id uint, status string) error {
	return r.db.Model(&models.Order{}).Where("id = ?", id).
		Update("order_status", status).Error
}
