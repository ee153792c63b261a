package router

import (
	"time"

	"bazari/config"
	"bazari/internal/handler"
	"bazari/internal/middleware"
	"bazari/internal/repository"
	"bazari/internal/service"
	"bazari/internal/ws"
	"bazari/pkg/cloudinary"
	"bazari/pkg/razorpay"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, gateway *razorpay.Client, cloud cloudinary.Client) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	orderHub := ws.NewHub()

	// Services
	authSvc := service.NewAuthService(cfg, userRepo)
	policy := service.NewPolicy(&cfg.Razorpay)
	reconciler := service.NewReconciler(orderRepo, paymentRepo, gateway, policy, auditRepo, orderHub)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo)
	googleOAuthHandler := handler.NewGoogleOAuthHandler(cfg, authSvc, auditRepo)
	productHandler := handler.NewProductHandler(productRepo)
	orderHandler := handler.NewOrderHandler(orderRepo, productRepo)
	paymentHandler := handler.NewPaymentHandler(cfg, gateway, orderRepo, reconciler)
	webhookHandler := handler.NewPaymentWebhookHandler(cfg, reconciler)
	adminHandler := handler.NewAdminHandler(userRepo, productRepo, orderRepo, paymentRepo, auditRepo, gateway)
	uploadHandler := handler.NewUploadHandler(cloud, productRepo)

	authMw := middleware.AuthRequired(&cfg.JWT)
	adminMw := middleware.AdminRequired()

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.PATCH("/change-password", authMw, authHandler.ChangePassword)
			authGroup.GET("/me", authMw, authHandler.Me)
			authGroup.PATCH("/me", authMw, authHandler.UpdateProfile)
			authGroup.GET("/google", googleOAuthHandler.Redirect)
			authGroup.GET("/google/callback", googleOAuthHandler.Callback)
			authGroup.POST("/google/token", googleOAuthHandler.Token)
		}

		api.GET("/products", productHandler.List)
		api.GET("/products/:id", productHandler.Get)

		api.POST("/orders", authMw, orderHandler.Create)
		api.GET("/orders", authMw, orderHandler.ListMine)

		payments := api.Group("/payments")
		payments.Use(authMw)
		{
			payments.POST("/create-order", paymentHandler.CreateGatewayOrder)
			payments.POST("/verify", paymentHandler.Verify)
		}

		// Webhook auth is the HMAC signature, not a bearer token.
		api.POST("/webhooks/razorpay", webhookHandler.Handle)

		admin := api.Group("/admin")
		admin.Use(authMw, adminMw)
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
			admin.GET("/counts", adminHandler.Counts)
			admin.POST("/products", adminHandler.AddProduct)
			admin.PUT("/products/:id", adminHandler.UpdateProduct)
			admin.DELETE("/products/:id", adminHandler.DeleteProduct)
			admin.POST("/products/:id/image", uploadHandler.UploadProductImage)
			admin.GET("/orders", adminHandler.ListOrders)
			admin.PATCH("/orders/:id/status", adminHandler.SetOrderStatus)
			admin.POST("/orders/:id/refund", adminHandler.RefundOrder)
		}
	}

	r.GET("/ws/orders", ws.UpgradeOrderEvents(&cfg.JWT, orderHub))

	return r
}
