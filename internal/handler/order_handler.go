package handler

import (
	"log"
	"net/http"

	"bazari/internal/middleware"
	"bazari/internal/models"

	"github.com/gin-gonic/gin"
)

// ProductCatalog is the product lookup the order handler needs.
type ProductCatalog interface {
	GetByIDs(ids []uint) ([]models.Product, error)
}

// OrderWriter is the order persistence surface the order handler needs.
type OrderWriter interface {
	Create(o *models.Order) error
	ListByUser(userID uint) ([]models.Order, error)
}

type OrderHandler struct {
	orders   OrderWriter
	products ProductCatalog
}

func NewOrderHandler(orders OrderWriter, products ProductCatalog) *OrderHandler {
	return &OrderHandler{orders: orders, products: products}
}

type createOrderItem struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

type CreateOrderRequest struct {
	Items   []createOrderItem `json:"items" binding:"required,min=1"`
	Address string            `json:"address" binding:"required"`
	// Optional client-side total in paise; rejected unless it matches the
	// server computation exactly.
	TotalPaise *int64 `json:"total_paise"`
}

// Create places an order in pending/preparing state. The total is always
// computed server-side from catalog prices.
func (h *OrderHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]uint, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := h.products.GetByIDs(ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error loading products"})
		return
	}
	priceByID := make(map[uint]int64, len(products))
	for _, p := range products {
		priceByID[p.ID] = p.PricePaise
	}

	var total int64
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		price, ok := priceByID[it.ProductID]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
			return
		}
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		total += price * int64(qty)
		items = append(items, models.OrderItem{
			ProductID:      it.ProductID,
			Quantity:       qty,
			UnitPricePaise: price,
		})
	}
	if req.TotalPaise != nil && *req.TotalPaise != total {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total amount mismatch"})
		return
	}

	order := &models.Order{
		UserID:     userID,
		Items:      items,
		TotalPaise: total,
		Address:    req.Address,
	}
	if err := h.orders.Create(order); err != nil {
		log.Printf("[orders] create failed user=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error creating order"})
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListMine(c *gin.Context) {
	userID := middleware.GetUserID(c)
	orders, err := h.orders.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error fetching orders"})
		return
	}
	c.JSON(http.StatusOK, orders)
}
