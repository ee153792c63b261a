package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bazari/internal/domain"
	"bazari/internal/models"
	"bazari/internal/repository"
	"bazari/pkg/razorpay"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type mockOrderStore struct {
	getByRef         func(ref string) (*models.Order, error)
	markPaid         func(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error)
	markFailed       func(id uint, paymentID string) (bool, error)
	setRefundDetails func(id uint, details datatypes.JSON) error
}

func (m *mockOrderStore) GetByRazorpayOrderID(ref string) (*models.Order, error) {
	return m.getByRef(ref)
}

func (m *mockOrderStore) MarkPaid(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error) {
	if m.markPaid == nil {
		return true, nil
	}
	return m.markPaid(id, paymentID, signature, currency, cardCountry, details)
}

func (m *mockOrderStore) MarkFailed(id uint, paymentID string) (bool, error) {
	if m.markFailed == nil {
		return true, nil
	}
	return m.markFailed(id, paymentID)
}

func (m *mockOrderStore) SetRefundDetails(id uint, details datatypes.JSON) error {
	if m.setRefundDetails == nil {
		return nil
	}
	return m.setRefundDetails(id, details)
}

type mockPaymentStore struct {
	upsert       func(snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*models.Payment, error)
	markRejected func(paymentID, note string) (bool, error)
	linkOrder    func(paymentID string, orderID, userID uint) error
	addRefund    func(paymentID string, ref *razorpay.Refund) error
}

func (m *mockPaymentStore) UpsertFromSnapshot(snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*models.Payment, error) {
	if m.upsert == nil {
		return &models.Payment{RazorpayPaymentID: snap.ID}, nil
	}
	return m.upsert(snap, meta)
}

func (m *mockPaymentStore) MarkRejected(paymentID, note string) (bool, error) {
	if m.markRejected == nil {
		return true, nil
	}
	return m.markRejected(paymentID, note)
}

func (m *mockPaymentStore) LinkOrder(paymentID string, orderID, userID uint) error {
	if m.linkOrder == nil {
		return nil
	}
	return m.linkOrder(paymentID, orderID, userID)
}

func (m *mockPaymentStore) AddRefund(paymentID string, ref *razorpay.Refund) error {
	if m.addRefund == nil {
		return nil
	}
	return m.addRefund(paymentID, ref)
}

type mockGateway struct {
	refund func(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error)
}

func (m *mockGateway) Refund(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error) {
	if m.refund == nil {
		return &razorpay.Refund{ID: "rfnd_test", PaymentID: paymentID, Status: "processed"}, nil
	}
	return m.refund(ctx, paymentID, amountPaise)
}

type mockAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (m *mockAudit) Create(entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type mockEvents struct {
	mu   sync.Mutex
	sent []OrderEvent
}

func (m *mockEvents) BroadcastAll(payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if evt, ok := payload.(OrderEvent); ok {
		m.sent = append(m.sent, evt)
	}
}

func (m *mockEvents) events() []OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderEvent(nil), m.sent...)
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:              7,
		UserID:          3,
		TotalPaise:      129900,
		RazorpayOrderID: "order_xyz",
		PaymentStatus:   domain.PaymentPending,
	}
}

func capturedSnapshot() *razorpay.PaymentSnapshot {
	return &razorpay.PaymentSnapshot{
		ID:       "pay_abc",
		OrderID:  "order_xyz",
		Amount:   129900,
		Currency: "INR",
		Method:   razorpay.MethodUPI,
		Status:   "captured",
		Raw:      []byte(`{"id":"pay_abc"}`),
	}
}

func clientMeta() repository.VerificationMeta {
	return repository.VerificationMeta{Channel: domain.ChannelClient, SignatureVerified: true, Signature: "sig"}
}

func TestReconcileAccept(t *testing.T) {
	var paid struct {
		called    bool
		paymentID string
		currency  string
	}
	orders := &mockOrderStore{
		getByRef: func(ref string) (*models.Order, error) { return pendingOrder(), nil },
		markPaid: func(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error) {
			paid.called = true
			paid.paymentID = paymentID
			paid.currency = currency
			if id != 7 {
				t.Errorf("MarkPaid order id = %d, want 7", id)
			}
			return true, nil
		},
	}
	linked := false
	payments := &mockPaymentStore{
		linkOrder: func(paymentID string, orderID, userID uint) error {
			linked = true
			if orderID != 7 || userID != 3 {
				t.Errorf("LinkOrder got order=%d user=%d", orderID, userID)
			}
			return nil
		},
	}
	refunded := make(chan string, 1)
	gateway := &mockGateway{refund: func(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error) {
		refunded <- paymentID
		return &razorpay.Refund{ID: "rfnd_x"}, nil
	}}
	audit := &mockAudit{}
	events := &mockEvents{}
	r := NewReconciler(orders, payments, gateway, testPolicy(), audit, events)

	out, err := r.Reconcile(context.Background(), capturedSnapshot(), clientMeta())
	if err != nil {
		t.Fatal(err)
	}
	if !out.Accepted || !out.Transitioned || out.OrderID != 7 {
		t.Errorf("outcome = %+v, want accepted+transitioned for order 7", out)
	}
	if !paid.called || paid.paymentID != "pay_abc" || paid.currency != "INR" {
		t.Errorf("MarkPaid call = %+v", paid)
	}
	if !linked {
		t.Error("payment not linked to order")
	}
	if audit.count() != 1 {
		t.Errorf("audit entries = %d, want 1", audit.count())
	}
	evts := events.events()
	if len(evts) != 1 || evts[0].PaymentStatus != domain.PaymentPaid {
		t.Errorf("events = %+v", evts)
	}

	select {
	case id := <-refunded:
		t.Errorf("accepted payment %s was refunded", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconcileAcceptReplayIsNoOp(t *testing.T) {
	orders := &mockOrderStore{
		getByRef: func(ref string) (*models.Order, error) { return pendingOrder(), nil },
		markPaid: func(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error) {
			return false, nil // already paid
		},
	}
	audit := &mockAudit{}
	events := &mockEvents{}
	r := NewReconciler(orders, &mockPaymentStore{}, &mockGateway{}, testPolicy(), audit, events)

	out, err := r.Reconcile(context.Background(), capturedSnapshot(), clientMeta())
	if err != nil {
		t.Fatal(err)
	}
	if !out.Accepted {
		t.Error("replay should still report accepted")
	}
	if out.Transitioned {
		t.Error("replay must not report a transition")
	}
	if audit.count() != 0 || len(events.events()) != 0 {
		t.Error("replay must not re-audit or re-publish")
	}
}

func TestReconcileRejectRefundsOnce(t *testing.T) {
	orders := &mockOrderStore{
		getByRef: func(ref string) (*models.Order, error) { return pendingOrder(), nil },
	}

	var mu sync.Mutex
	noted := false
	payments := &mockPaymentStore{
		markRejected: func(paymentID, note string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if noted {
				return false, nil
			}
			noted = true
			return true, nil
		},
	}
	refunds := make(chan string, 4)
	gateway := &mockGateway{refund: func(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error) {
		refunds <- paymentID
		if amountPaise != 0 {
			t.Errorf("refund amount = %d, want 0 (full)", amountPaise)
		}
		return &razorpay.Refund{ID: "rfnd_1", PaymentID: paymentID, Status: "processed"}, nil
	}}
	r := NewReconciler(orders, payments, gateway, testPolicy(), &mockAudit{}, &mockEvents{})

	snap := capturedSnapshot()
	snap.Currency = "USD"

	out, err := r.Reconcile(context.Background(), snap, clientMeta())
	if err != nil {
		t.Fatal(err)
	}
	if out.Accepted {
		t.Fatal("USD payment accepted")
	}
	if out.Reason != domain.RejectCurrencyMismatch {
		t.Errorf("reason = %q", out.Reason)
	}

	// Webhook delivers the same payment again.
	meta := repository.VerificationMeta{Channel: domain.ChannelWebhook, SignatureVerified: true}
	if _, err := r.Reconcile(context.Background(), snap, meta); err != nil {
		t.Fatal(err)
	}

	select {
	case <-refunds:
	case <-time.After(time.Second):
		t.Fatal("refund never issued")
	}
	select {
	case <-refunds:
		t.Error("refund issued twice for the same rejection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconcileGatewayFailedSkipsRefund(t *testing.T) {
	var failed bool
	orders := &mockOrderStore{
		getByRef: func(ref string) (*models.Order, error) { return pendingOrder(), nil },
		markFailed: func(id uint, paymentID string) (bool, error) {
			failed = true
			return true, nil
		},
	}
	refunds := make(chan string, 1)
	gateway := &mockGateway{refund: func(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error) {
		refunds <- paymentID
		return nil, nil
	}}
	rejected := false
	payments := &mockPaymentStore{markRejected: func(paymentID, note string) (bool, error) {
		rejected = true
		return true, nil
	}}
	r := NewReconciler(orders, payments, gateway, testPolicy(), &mockAudit{}, &mockEvents{})

	snap := capturedSnapshot()
	snap.Status = domain.RecordFailed
	snap.Currency = "USD" // policy must not even run for failed payments

	out, err := r.Reconcile(context.Background(), snap, clientMeta())
	if err != nil {
		t.Fatal(err)
	}
	if out.Accepted || !failed || !out.Transitioned {
		t.Errorf("failed snapshot should mark the order failed: %+v", out)
	}
	if rejected {
		t.Error("failed payment recorded as a policy rejection")
	}
	select {
	case <-refunds:
		t.Error("nothing was captured, there is nothing to refund")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconcileWithoutLocalOrder(t *testing.T) {
	orders := &mockOrderStore{
		getByRef: func(ref string) (*models.Order, error) { return nil, gorm.ErrRecordNotFound },
	}
	upserted := false
	payments := &mockPaymentStore{
		upsert: func(snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*models.Payment, error) {
			upserted = true
			return &models.Payment{RazorpayPaymentID: snap.ID}, nil
		},
	}
	r := NewReconciler(orders, payments, &mockGateway{}, testPolicy(), &mockAudit{}, &mockEvents{})

	out, err := r.Reconcile(context.Background(), capturedSnapshot(), clientMeta())
	if err != nil {
		t.Fatal(err)
	}
	if out.OrderID != 0 || out.Transitioned {
		t.Errorf("outcome = %+v, want no order touched", out)
	}
	if !upserted {
		t.Error("payment record must be kept even without a local order")
	}
}

func TestReconcileRejectsNilSnapshot(t *testing.T) {
	r := NewReconciler(&mockOrderStore{}, &mockPaymentStore{}, &mockGateway{}, testPolicy(), nil, nil)
	if _, err := r.Reconcile(context.Background(), nil, clientMeta()); err == nil {
		t.Error("nil snapshot accepted")
	}
	if _, err := r.Reconcile(context.Background(), &razorpay.PaymentSnapshot{}, clientMeta()); err == nil {
		t.Error("snapshot without id accepted")
	}
}

// Both channels race on the same payment: the conditional MarkPaid semantics
// must hand the transition to exactly one of them.
func TestReconcileConcurrentChannels(t *testing.T) {
	var mu sync.Mutex
	status := domain.PaymentPending
	transitions := 0
	orders := &mockOrderStore{
		getByRef: func(ref string) (*models.Order, error) { return pendingOrder(), nil },
		markPaid: func(id uint, paymentID, signature, currency string, cardCountry *string, details datatypes.JSON) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if status != domain.PaymentPending {
				return false, nil
			}
			status = domain.PaymentPaid
			transitions++
			return true, nil
		},
	}
	events := &mockEvents{}
	r := NewReconciler(orders, &mockPaymentStore{}, &mockGateway{}, testPolicy(), &mockAudit{}, events)

	var wg sync.WaitGroup
	for _, channel := range []string{domain.ChannelClient, domain.ChannelWebhook} {
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			meta := repository.VerificationMeta{Channel: ch, SignatureVerified: true}
			if _, err := r.Reconcile(context.Background(), capturedSnapshot(), meta); err != nil {
				t.Errorf("channel %s: %v", ch, err)
			}
		}(channel)
	}
	wg.Wait()

	if transitions != 1 {
		t.Errorf("transitions = %d, want exactly 1", transitions)
	}
	if got := len(events.events()); got != 1 {
		t.Errorf("published events = %d, want 1", got)
	}
}
