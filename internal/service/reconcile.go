package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bazari/internal/domain"
	"bazari/internal/models"
	"bazari/internal/repository"
	"bazari/pkg/razorpay"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidSnapshot = errors.New("reconcile: snapshot missing payment id")

// OrderStore is the subset of OrderRepository the reconciler needs.
type OrderStore interface {
	GetByRazorpayOrderID(ref string) (*models.Order, error)
	MarkPaid(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error)
	MarkFailed(id uint, paymentID string) (bool, error)
	SetRefundDetails(id uint, details datatypes.JSON) error
}

// PaymentStore is the subset of PaymentRepository the reconciler needs.
type PaymentStore interface {
	UpsertFromSnapshot(snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*models.Payment, error)
	MarkRejected(paymentID, note string) (bool, error)
	LinkOrder(paymentID string, orderID, userID uint) error
	AddRefund(paymentID string, ref *razorpay.Refund) error
}

// RefundGateway issues refunds against the payment provider.
type RefundGateway interface {
	Refund(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error)
}

// AuditStore records reconciliation decisions.
type AuditStore interface {
	Create(entry *models.AuditLog) error
}

// EventSink receives order events for live dashboards. *ws.Hub satisfies it.
type EventSink interface {
	BroadcastAll(payload interface{})
}

// OrderEvent is pushed to the admin events feed on every order transition.
type OrderEvent struct {
	Type          string `json:"type"`
	OrderID       uint   `json:"order_id,omitempty"`
	PaymentID     string `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
	Reason        string `json:"reason,omitempty"`
	Channel       string `json:"channel"`
}

// Outcome reports what a reconcile run decided and whether this particular
// run performed the order transition (false on replays and lost races).
type Outcome struct {
	Accepted     bool
	Reason       string
	OrderID      uint // 0 when no local order matched
	Transitioned bool
}

// Reconciler drives order state from gateway payment snapshots. Both delivery
// channels (client verify callback and provider webhook) call Reconcile with
// the same logic; runs for the same payment id are serialized by a keyed
// lock, and every status write is additionally conditional so a second
// process cannot corrupt an order.
type Reconciler struct {
	orders   OrderStore
	payments PaymentStore
	gateway  RefundGateway
	policy   *Policy
	audit    AuditStore
	events   EventSink
	locks    keyedLocks
}

func NewReconciler(orders OrderStore, payments PaymentStore, gateway RefundGateway, policy *Policy, audit AuditStore, events EventSink) *Reconciler {
	return &Reconciler{
		orders:   orders,
		payments: payments,
		gateway:  gateway,
		policy:   policy,
		audit:    audit,
		events:   events,
	}
}

// Reconcile applies one payment snapshot. Callers must have verified the
// channel signature already; meta records the channel and verification state
// for the payment record's audit trail.
func (r *Reconciler) Reconcile(ctx context.Context, snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*Outcome, error) {
	if snap == nil || snap.ID == "" {
		return nil, ErrInvalidSnapshot
	}
	unlock := r.locks.lock(snap.ID)
	defer unlock()

	if _, err := r.payments.UpsertFromSnapshot(snap, meta); err != nil {
		return nil, fmt.Errorf("reconcile: upsert payment %s: %w", snap.ID, err)
	}

	// A payment can arrive before or without a matching local order (test
	// events, deleted orders). Persisting the record above is enough then.
	var order *models.Order
	if snap.OrderID != "" {
		o, err := r.orders.GetByRazorpayOrderID(snap.OrderID)
		switch {
		case err == nil:
			order = o
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("[reconcile] no local order for %s (payment %s), record kept for audit", snap.OrderID, snap.ID)
		default:
			return nil, fmt.Errorf("reconcile: load order %s: %w", snap.OrderID, err)
		}
	}

	// Gateway-side failures: nothing was captured, so nothing to refund.
	if snap.Status == domain.RecordFailed {
		return r.applyFailed(snap, order, meta)
	}

	res := r.policy.Evaluate(snap)
	if !res.Accepted {
		return r.applyReject(snap, order, res.Reason, meta)
	}
	return r.applyAccept(snap, order, meta)
}

func (r *Reconciler) applyAccept(snap *razorpay.PaymentSnapshot, order *models.Order, meta repository.VerificationMeta) (*Outcome, error) {
	out := &Outcome{Accepted: true}
	if order == nil {
		return out, nil
	}
	out.OrderID = order.ID

	var cardCountry *string
	if snap.Card != nil && snap.Card.Country != "" {
		c := snap.Card.Country
		cardCountry = &c
	}
	ok, err := r.orders.MarkPaid(order.ID, snap.ID, meta.Signature, snap.Currency, cardCountry, datatypes.JSON(snap.Raw))
	if err != nil {
		return nil, fmt.Errorf("reconcile: mark paid order %d: %w", order.ID, err)
	}
	out.Transitioned = ok
	if !ok {
		// Already terminal: replay from the other channel, or a lost race.
		log.Printf("[reconcile] order %d not pending, accept for %s is a no-op (channel=%s)", order.ID, snap.ID, meta.Channel)
	} else {
		r.auditLog(order.UserID, "payment_accepted", snap.ID, meta)
		r.publish(OrderEvent{
			Type:          "order.payment",
			OrderID:       order.ID,
			PaymentID:     snap.ID,
			PaymentStatus: domain.PaymentPaid,
			Channel:       meta.Channel,
		})
	}
	if err := r.payments.LinkOrder(snap.ID, order.ID, order.UserID); err != nil {
		log.Printf("[reconcile] link payment %s to order %d: %v", snap.ID, order.ID, err)
	}
	return out, nil
}

func (r *Reconciler) applyReject(snap *razorpay.PaymentSnapshot, order *models.Order, reason string, meta repository.VerificationMeta) (*Outcome, error) {
	out := &Outcome{Reason: reason}
	if order != nil {
		out.OrderID = order.ID
		ok, err := r.orders.MarkFailed(order.ID, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("reconcile: mark failed order %d: %w", order.ID, err)
		}
		out.Transitioned = ok
	}

	// The conditional note write decides which run owns the refund; replays
	// and the racing second channel get first=false and skip it.
	first, err := r.payments.MarkRejected(snap.ID, "Rejected: "+reason)
	if err != nil {
		return nil, fmt.Errorf("reconcile: mark rejected payment %s: %w", snap.ID, err)
	}
	if first {
		r.auditLog(orderUserID(order), "payment_rejected", snap.ID, meta)
		r.publish(OrderEvent{
			Type:          "order.payment",
			OrderID:       out.OrderID,
			PaymentID:     snap.ID,
			PaymentStatus: domain.PaymentFailed,
			Reason:        reason,
			Channel:       meta.Channel,
		})
		go r.refundRejected(snap, order)
	}
	return out, nil
}

func (r *Reconciler) applyFailed(snap *razorpay.PaymentSnapshot, order *models.Order, meta repository.VerificationMeta) (*Outcome, error) {
	out := &Outcome{Reason: domain.RecordFailed}
	if order == nil {
		return out, nil
	}
	out.OrderID = order.ID
	ok, err := r.orders.MarkFailed(order.ID, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: mark failed order %d: %w", order.ID, err)
	}
	out.Transitioned = ok
	if ok {
		r.auditLog(order.UserID, "payment_failed", snap.ID, meta)
		r.publish(OrderEvent{
			Type:          "order.payment",
			OrderID:       order.ID,
			PaymentID:     snap.ID,
			PaymentStatus: domain.PaymentFailed,
			Reason:        domain.RecordFailed,
			Channel:       meta.Channel,
		})
	}
	return out, nil
}

// refundRejected issues the full refund for a policy-rejected payment as a
// best-effort follow-up: the local status writes are already done and no
// lock is held here. Failure is logged for operators, never propagated.
func (r *Reconciler) refundRejected(snap *razorpay.PaymentSnapshot, order *models.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ref, err := r.gateway.Refund(ctx, snap.ID, 0)
	if err != nil {
		log.Printf("[reconcile] refund failed for payment %s: %v", snap.ID, err)
		return
	}
	if err := r.payments.AddRefund(snap.ID, ref); err != nil {
		log.Printf("[reconcile] record refund %s for payment %s: %v", ref.ID, snap.ID, err)
	}
	if order != nil {
		blob, _ := json.Marshal(ref)
		if err := r.orders.SetRefundDetails(order.ID, datatypes.JSON(blob)); err != nil {
			log.Printf("[reconcile] store refund details on order %d: %v", order.ID, err)
		}
	}
}

func (r *Reconciler) publish(evt OrderEvent) {
	if r.events != nil {
		r.events.BroadcastAll(evt)
	}
}

func (r *Reconciler) auditLog(userID uint, action, paymentID string, meta repository.VerificationMeta) {
	if r.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "payment",
		ResourceID: paymentID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Metadata:   fmt.Sprintf(`{"channel":%q}`, meta.Channel),
	}
	if userID != 0 {
		entry.UserID = &userID
	}
	if err := r.audit.Create(entry); err != nil {
		log.Printf("[reconcile] audit log: %v", err)
	}
}

func orderUserID(order *models.Order) uint {
	if order == nil {
		return 0
	}
	return order.UserID
}

// keyedLocks serializes reconcile runs per provider payment id so the client
// callback and the webhook cannot interleave writes for the same payment.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*lockEntry)
	}
	e := k.m[key]
	if e == nil {
		e = &lockEntry{}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
