package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bazari/internal/repository"
	"bazari/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UploadHandler struct {
	cloud       cloudinary.Client
	productRepo *repository.ProductRepository
}

func NewUploadHandler(cloud cloudinary.Client, productRepo *repository.ProductRepository) *UploadHandler {
	return &UploadHandler{cloud: cloud, productRepo: productRepo}
}

// UploadProductImage uploads a catalog image and attaches it to the product.
func (h *UploadHandler) UploadProductImage(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image uploads not configured"})
		return
	}
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

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	publicID := "prod_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	url, err := h.cloud.UploadImage(c.Request.Context(), f, "bazari/products", publicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	p.ImageURL = url
	if err := h.productRepo.Update(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error updating product"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "product": p})
}
