package repository

import (
	"errors"
	"time"

	"bazari/internal/domain"
	"bazari/internal/models"
	"bazari/pkg/razorpay"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VerificationMeta carries per-request context into the payment upsert: which
// channel delivered the snapshot, whether its signature checked out, and the
// client fingerprint when the client channel was used.
type VerificationMeta struct {
	Channel           string
	SignatureVerified bool
	Signature         string
	IP                string
	UserAgent         string
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByProviderRef(paymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Preload("Refunds").Where("razorpay_payment_id = ?", paymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertFromSnapshot creates or updates the canonical payment record for the
// snapshot's payment id. Field values are synced from the snapshot, refund
// events are merged by refund id, and Attempts increments on every call.
// SignatureVerified only ever flips to true; VerificationNotes is left alone
// so a recorded rejection survives replays.
func (r *PaymentRepository) UpsertFromSnapshot(snap *razorpay.PaymentSnapshot, meta VerificationMeta) (*models.Payment, error) {
	if snap == nil || snap.ID == "" {
		return nil, errors.New("payment snapshot missing id")
	}
	var p models.Payment
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Refunds must be loaded here or mergeRefunds dedupes against an
		// empty list and replayed snapshots violate the refund_id unique
		// index.
		err := tx.Preload("Refunds").Where("razorpay_payment_id = ?", snap.ID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = models.Payment{RazorpayPaymentID: snap.ID}
		} else if err != nil {
			return err
		}

		p.RazorpayOrderID = snap.OrderID
		p.AmountPaise = snap.Amount
		p.Currency = snap.Currency
		p.Method = snap.Method
		p.Status = snap.Status
		p.Raw = datatypes.JSON(snap.Raw)
		if snap.AcquirerData != nil {
			p.AcquirerData = datatypes.JSON(snap.AcquirerData)
		}
		if snap.Card != nil {
			p.CardNetwork = snap.Card.Network
			p.CardBrand = snap.Card.Brand
			p.CardLast4 = snap.Card.Last4
			p.CardIssuer = snap.Card.Issuer
			if snap.Card.Country != "" {
				country := snap.Card.Country
				p.CardCountry = &country
			}
		}
		if snap.VPA != "" {
			vpa := snap.VPA
			p.VPA = &vpa
		}
		if snap.Bank != "" {
			bank := snap.Bank
			p.Bank = &bank
		}
		if snap.Wallet != "" {
			wallet := snap.Wallet
			p.Wallet = &wallet
		}
		if meta.SignatureVerified {
			p.SignatureVerified = true
		}
		if meta.IP != "" {
			p.IP = meta.IP
		}
		if meta.UserAgent != "" {
			p.UserAgent = meta.UserAgent
		}
		p.Attempts++
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		return mergeRefunds(tx, &p, snap.Refunds)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// mergeRefunds appends snapshot refund events that are not yet recorded.
func mergeRefunds(tx *gorm.DB, p *models.Payment, refunds []razorpay.Refund) error {
	for _, ref := range refunds {
		if ref.ID == "" {
			continue
		}
		exists := false
		for _, have := range p.Refunds {
			if have.RefundID == ref.ID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		row := models.PaymentRefund{
			PaymentID:   p.ID,
			RefundID:    ref.ID,
			AmountPaise: ref.Amount,
			Status:      ref.Status,
			CreatedAt:   time.Unix(ref.CreatedAt, 0),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		p.Refunds = append(p.Refunds, row)
	}
	return nil
}

// MarkRejected records a policy rejection exactly once per payment. The
// conditional WHERE means only the first caller gets true; replays and the
// racing second channel see false and must not re-trigger the refund.
func (r *PaymentRepository) MarkRejected(paymentID, note string) (bool, error) {
	res := r.db.Model(&models.Payment{}).
		Where("razorpay_payment_id = ? AND (verification_notes IS NULL OR verification_notes = '')", paymentID).
		Updates(map[string]interface{}{
			"verification_notes": note,
			"status":             domain.RecordRefundProcessing,
		})
	return res.RowsAffected > 0, res.Error
}

// LinkOrder sets the order/user back-references if not already linked.
func (r *PaymentRepository) LinkOrder(paymentID string, orderID, userID uint) error {
	return r.db.Model(&models.Payment{}).
		Where("razorpay_payment_id = ? AND order_id IS NULL", paymentID).
		Updates(map[string]interface{}{"order_id": orderID, "user_id": userID}).Error
}

// AddRefund records a refund issued by this service (as opposed to one
// reported inside a later snapshot, which mergeRefunds handles).
func (r *PaymentRepository) AddRefund(paymentID string, ref *razorpay.Refund) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Preload("Refunds").Where("razorpay_payment_id = ?", paymentID).First(&p).Error; err != nil {
			return err
		}
		return mergeRefunds(tx, &p, []razorpay.Refund{*ref})
	})
}

func (r *PaymentRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.Payment{}).Count(&n).Error
	return n, err
}
