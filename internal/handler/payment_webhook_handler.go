package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"bazari/config"
	"bazari/internal/domain"
	"bazari/internal/repository"
	"bazari/pkg/razorpay"

	"github.com/gin-gonic/gin"
)

type PaymentWebhookHandler struct {
	cfg        *config.Config
	reconciler ReconcileRunner
}

func NewPaymentWebhookHandler(cfg *config.Config, reconciler ReconcileRunner) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{cfg: cfg, reconciler: reconciler}
}

// Handle is the webhook channel. The signature is computed over the exact
// raw body bytes; parsing happens only after verification. Per provider
// retry conventions the handler answers 200 for anything it understood,
// even non-actionable events, and non-200 only for a bad signature or a
// genuine processing fault.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	signature := c.GetHeader("X-Razorpay-Signature")
	if !razorpay.VerifyWebhookSignature(body, h.cfg.Razorpay.WebhookSecret, signature) {
		log.Printf("[webhook] invalid signature from %s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event razorpay.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch event.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid, razorpay.EventPaymentFailed:
		snap := event.Payload.Payment.Entity
		if snap.ID == "" {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		outcome, err := h.reconciler.Reconcile(c.Request.Context(), &snap, repository.VerificationMeta{
			Channel:           domain.ChannelWebhook,
			SignatureVerified: true,
		})
		if err != nil {
			log.Printf("[webhook] reconcile failed event=%s payment=%s: %v", event.Event, snap.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ok": outcome.Accepted})
	default:
		// Understood but not actionable; 200 stops provider retries.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
