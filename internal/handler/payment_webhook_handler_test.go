package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"bazari/internal/domain"
	"bazari/internal/repository"
	"bazari/internal/service"
	"bazari/pkg/razorpay"

	"github.com/gin-gonic/gin"
)

func webhookTestRouter(h *PaymentWebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/razorpay", h.Handle)
	return r
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const capturedEventBody = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_abc","order_id":"order_xyz","amount":129900,"currency":"INR","method":"upi","status":"captured"}}},"created_at":1712000000}`

func TestWebhookRejectsBadSignature(t *testing.T) {
	reconciler := &mockReconciler{
		reconcile: func(ctx context.Context, snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*service.Outcome, error) {
			t.Error("reconcile ran despite bad signature")
			return nil, nil
		},
	}
	h := NewPaymentWebhookHandler(paymentTestConfig(), reconciler)
	r := webhookTestRouter(h)

	if w := postWebhook(r, []byte(capturedEventBody), "deadbeef"); w.Code != http.StatusBadRequest {
		t.Errorf("bad signature: status = %d, want 400", w.Code)
	}
	if w := postWebhook(r, []byte(capturedEventBody), ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing signature: status = %d, want 400", w.Code)
	}
}

func TestWebhookReconcilesCapturedPayment(t *testing.T) {
	var got *razorpay.PaymentSnapshot
	reconciler := &mockReconciler{
		reconcile: func(ctx context.Context, snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*service.Outcome, error) {
			got = snap
			if meta.Channel != domain.ChannelWebhook || !meta.SignatureVerified {
				t.Errorf("meta = %+v", meta)
			}
			return &service.Outcome{Accepted: true, OrderID: 7, Transitioned: true}, nil
		},
	}
	h := NewPaymentWebhookHandler(paymentTestConfig(), reconciler)

	body := []byte(capturedEventBody)
	w := postWebhook(webhookTestRouter(h), body, signHex(body, "whsec"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got == nil || got.ID != "pay_abc" || got.Amount != 129900 {
		t.Errorf("reconciled snapshot = %+v", got)
	}
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	reconciler := &mockReconciler{
		reconcile: func(ctx context.Context, snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*service.Outcome, error) {
			t.Error("reconcile ran for a non-actionable event")
			return nil, nil
		},
	}
	h := NewPaymentWebhookHandler(paymentTestConfig(), reconciler)

	body := []byte(`{"event":"refund.created","payload":{},"created_at":1712000000}`)
	w := postWebhook(webhookTestRouter(h), body, signHex(body, "whsec"))
	// 200 so the provider stops retrying.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestWebhookSignatureOverExactBytes(t *testing.T) {
	h := NewPaymentWebhookHandler(paymentTestConfig(), &mockReconciler{
		reconcile: func(ctx context.Context, snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*service.Outcome, error) {
			return &service.Outcome{Accepted: true}, nil
		},
	})
	r := webhookTestRouter(h)

	// Signature computed over different whitespace layout must not verify.
	spaced := []byte(`{ "event": "payment.captured" }`)
	compact := []byte(`{"event":"payment.captured"}`)
	if w := postWebhook(r, compact, signHex(spaced, "whsec")); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for byte-level mismatch", w.Code)
	}
	if w := postWebhook(r, spaced, signHex(spaced, "whsec")); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for the exact signed bytes", w.Code)
	}
}
