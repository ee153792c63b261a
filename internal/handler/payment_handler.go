package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"bazari/config"
	"bazari/internal/domain"
	"bazari/internal/middleware"
	"bazari/internal/models"
	"bazari/internal/repository"
	"bazari/internal/service"
	"bazari/pkg/razorpay"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GatewayOrders is the gateway surface used by the checkout endpoints.
type GatewayOrders interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*razorpay.OrderHandle, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.PaymentSnapshot, error)
}

// OrderGateway is the order persistence surface used by the checkout
// endpoints.
type OrderGateway interface {
	GetByID(id uint) (*models.Order, error)
	AttachGatewayOrder(id uint, razorpayOrderID string) error
}

// ReconcileRunner runs the shared reconcile logic; *service.Reconciler
// satisfies it.
type ReconcileRunner interface {
	Reconcile(ctx context.Context, snap *razorpay.PaymentSnapshot, meta repository.VerificationMeta) (*service.Outcome, error)
}

type PaymentHandler struct {
	cfg        *config.Config
	gateway    GatewayOrders
	orders     OrderGateway
	reconciler ReconcileRunner
}

func NewPaymentHandler(cfg *config.Config, gateway GatewayOrders, orders OrderGateway, reconciler ReconcileRunner) *PaymentHandler {
	return &PaymentHandler{cfg: cfg, gateway: gateway, orders: orders, reconciler: reconciler}
}

type CreateGatewayOrderRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

// CreateGatewayOrder opens a Razorpay order for an existing local order and
// stores the provider order id on it.
func (h *PaymentHandler) CreateGatewayOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateGatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id required"})
		return
	}
	order, err := h.orders.GetByID(req.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error loading order"})
		return
	}
	if order.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if order.PaymentStatus != domain.PaymentPending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order is not awaiting payment"})
		return
	}

	receipt := fmt.Sprintf("rcpt_%d", order.ID)
	handle, err := h.gateway.CreateOrder(c.Request.Context(), order.TotalPaise, h.cfg.Razorpay.Currency, receipt)
	if err != nil {
		if errors.Is(err, razorpay.ErrUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
			return
		}
		log.Printf("[payments] create gateway order failed order=%d: %v", order.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open gateway order"})
		return
	}
	if err := h.orders.AttachGatewayOrder(order.ID, handle.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store gateway order"})
		return
	}
	order.RazorpayOrderID = handle.ID
	c.JSON(http.StatusOK, gin.H{"ok": true, "razorpay_order": handle, "order": order})
}

type VerifyRequest struct {
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

// Verify is the client-callback channel: the frontend reports a completed
// checkout. The signature is checked first; the canonical snapshot is then
// fetched from the gateway (never trusted from the client) and reconciled.
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing fields"})
		return
	}
	if !razorpay.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, h.cfg.Razorpay.KeySecret, req.RazorpaySignature) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid signature"})
		return
	}

	snap, err := h.gateway.FetchPayment(c.Request.Context(), req.RazorpayPaymentID)
	if err != nil {
		if errors.Is(err, razorpay.ErrUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "payment gateway unavailable"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "payment not found at gateway"})
		return
	}

	outcome, err := h.reconciler.Reconcile(c.Request.Context(), snap, repository.VerificationMeta{
		Channel:           domain.ChannelClient,
		SignatureVerified: true,
		Signature:         req.RazorpaySignature,
		IP:                c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
	})
	if err != nil {
		log.Printf("[payments] verify reconcile failed payment=%s: %v", req.RazorpayPaymentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "verification failed"})
		return
	}
	if !outcome.Accepted {
		// A policy rejection is a business outcome, not a transport error.
		c.JSON(http.StatusOK, gin.H{"ok": false, "reason": outcome.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "order_id": outcome.OrderID})
}
