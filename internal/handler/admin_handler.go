package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"bazari/internal/domain"
	"bazari/internal/middleware"
	"bazari/internal/models"
	"bazari/internal/repository"
	"bazari/pkg/razorpay"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RefundGateway issues operator-triggered refunds.
type RefundGateway interface {
	Refund(ctx context.Context, paymentID string, amountPaise int64) (*razorpay.Refund, error)
}

type AdminHandler struct {
	userRepo    *repository.UserRepository
	productRepo *repository.ProductRepository
	orderRepo   *repository.OrderRepository
	paymentRepo *repository.PaymentRepository
	auditRepo   *repository.AuditLogRepository
	gateway     RefundGateway
}

func NewAdminHandler(
	userRepo *repository.UserRepository,
	productRepo *repository.ProductRepository,
	orderRepo *repository.OrderRepository,
	paymentRepo *repository.PaymentRepository,
	auditRepo *repository.AuditLogRepository,
	gateway RefundGateway,
) *AdminHandler {
	return &AdminHandler{
		userRepo:    userRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		gateway:     gateway,
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userRepo.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	u, err := h.userRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching user"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if err := h.userRepo.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error deleting user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ProductRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	PricePaise  int64  `json:"price_paise" binding:"required,min=1"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
}

func (h *AdminHandler) AddProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		PricePaise:  req.PricePaise,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
	}
	if err := h.productRepo.Create(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error adding product"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *AdminHandler) UpdateProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	p, err := h.productRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching product"})
		return
	}
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.Name = req.Name
	p.Description = req.Description
	p.PricePaise = req.PricePaise
	p.Category = req.Category
	if req.ImageURL != "" {
		p.ImageURL = req.ImageURL
	}
	if err := h.productRepo.Update(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error updating product"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	if _, err := h.productRepo.GetByID(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching product"})
		return
	}
	if err := h.productRepo.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error deleting product"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderRepo.ListAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching orders"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

type OrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=preparing ready delivered cancelled"`
}

// SetOrderStatus advances the fulfillment status.
func (h *AdminHandler) SetOrderStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var req OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orderRepo.SetOrderStatus(uint(id), req.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error updating order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RefundOrder is the out-of-band operational refund for a paid order. The
// gateway call happens first so a gateway failure leaves the order paid and
// retryable; the paid->refunded transition is conditional like all other
// status writes.
func (h *AdminHandler) RefundOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	order, err := h.orderRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching order"})
		return
	}
	if order.PaymentStatus != domain.PaymentPaid || order.RazorpayPaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order is not refundable"})
		return
	}

	ref, err := h.gateway.Refund(c.Request.Context(), order.RazorpayPaymentID, 0)
	if err != nil {
		if errors.Is(err, razorpay.ErrUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, retry later"})
			return
		}
		log.Printf("[admin] refund rejected order=%d payment=%s: %v", order.ID, order.RazorpayPaymentID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "gateway rejected refund"})
		return
	}

	blob, _ := json.Marshal(ref)
	ok, err := h.orderRepo.MarkRefunded(order.ID, datatypes.JSON(blob))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error updating order"})
		return
	}
	if err := h.paymentRepo.AddRefund(order.RazorpayPaymentID, ref); err != nil {
		log.Printf("[admin] record refund %s: %v", ref.ID, err)
	}
	adminID := middleware.GetUserID(c)
	_ = h.auditRepo.Create(&models.AuditLog{
		UserID:     &adminID,
		Action:     "refund",
		Resource:   "order",
		ResourceID: strconv.FormatUint(uint64(order.ID), 10),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   string(blob),
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "refund": ref, "transitioned": ok})
}

func (h *AdminHandler) Counts(c *gin.Context) {
	users, _ := h.userRepo.Count()
	products, _ := h.productRepo.Count()
	orders, _ := h.orderRepo.Count()
	payments, _ := h.paymentRepo.Count()
	c.JSON(http.StatusOK, gin.H{
		"users":    users,
		"products": products,
		"orders":   orders,
		"payments": payments,
	})
}
