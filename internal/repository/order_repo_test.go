package repository

import (
	"testing"

	"bazari/internal/domain"
	"bazari/internal/models"

	"gorm.io/datatypes"
)

func seedPendingOrder(t *testing.T, repo *OrderRepository) *models.Order {
	t.Helper()
	user := &models.User{Name: "Asha", Email: "asha@example.com", Role: domain.RoleUser}
	if err := repo.db.Create(user).Error; err != nil {
		t.Fatal(err)
	}
	product := &models.Product{Name: "Masala Chai Tin", PricePaise: 25000}
	if err := repo.db.Create(product).Error; err != nil {
		t.Fatal(err)
	}
	o := &models.Order{
		UserID:          user.ID,
		TotalPaise:      25000,
		Address:         "14 MG Road, Bengaluru",
		RazorpayOrderID: "order_xyz",
		PaymentStatus:   domain.PaymentPending,
		OrderStatus:     domain.OrderPreparing,
		Items: []models.OrderItem{
			{ProductID: product.ID, Quantity: 1, UnitPricePaise: 25000},
		},
	}
	if err := repo.Create(o); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestMarkPaidOnlyFromPending(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	o := seedPendingOrder(t, repo)

	country := "IN"
	ok, err := repo.MarkPaid(o.ID, "pay_abc", "sig", "INR", &country, datatypes.JSON(`{"id":"pay_abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("pending order not transitioned")
	}

	// Replay from the other channel.
	ok, err = repo.MarkPaid(o.ID, "pay_abc", "sig", "INR", &country, datatypes.JSON(`{"id":"pay_abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("paid order transitioned again")
	}

	// A late reject must not flip a paid order either.
	ok, err = repo.MarkFailed(o.ID, "pay_abc")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("paid order marked failed")
	}

	got, err := repo.GetByID(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != domain.PaymentPaid || got.RazorpayPaymentID != "pay_abc" {
		t.Errorf("order = status %q payment %q", got.PaymentStatus, got.RazorpayPaymentID)
	}
	if got.CardCountry == nil || *got.CardCountry != "IN" {
		t.Errorf("card country = %v", got.CardCountry)
	}
}

func TestMarkFailedOnlyFromPending(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	o := seedPendingOrder(t, repo)

	ok, err := repo.MarkFailed(o.ID, "pay_abc")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("pending order not marked failed")
	}
	// A racing accept arrives after the reject landed.
	ok, err = repo.MarkPaid(o.ID, "pay_abc", "sig", "INR", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed order transitioned to paid")
	}
}

func TestMarkRefundedRequiresPaid(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	o := seedPendingOrder(t, repo)

	ok, err := repo.MarkRefunded(o.ID, datatypes.JSON(`{"id":"rfnd_1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("pending order refunded")
	}

	if _, err := repo.MarkPaid(o.ID, "pay_abc", "sig", "INR", nil, nil); err != nil {
		t.Fatal(err)
	}
	ok, err = repo.MarkRefunded(o.ID, datatypes.JSON(`{"id":"rfnd_1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("paid order not refunded")
	}
	// Refunded is terminal.
	ok, err = repo.MarkRefunded(o.ID, datatypes.JSON(`{"id":"rfnd_2"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("refunded order refunded again")
	}
}

func TestGetByRazorpayOrderID(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	seedPendingOrder(t, repo)

	got, err := repo.GetByRazorpayOrderID("order_xyz")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalPaise != 25000 {
		t.Errorf("total = %d, want 25000", got.TotalPaise)
	}
	if _, err := repo.GetByRazorpayOrderID("order_unknown"); err == nil {
		t.Error("unknown gateway order id found")
	}
}
