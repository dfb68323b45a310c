package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/controller"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

// Controllers groups the HTTP handlers mounted by the router.
type Controllers struct {
	Auth     *controller.AuthController
	Order    *controller.OrderController
	Payment  *controller.PaymentController
	Coupon   *controller.CouponController
	Return   *controller.ReturnController
	Upload   *controller.UploadController
	Shipment *controller.ShipmentController
}

type Router struct {
	controllers    Controllers
	authMiddleware *middleware.AuthMiddleware
	config         *config.Config
}

func NewRouter(controllers Controllers, authMiddleware *middleware.AuthMiddleware, cfg *config.Config) *Router {
	return &Router{
		controllers:    controllers,
		authMiddleware: authMiddleware,
		config:         cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "storefront API is running",
		})
	})

	ctl := r.controllers
	authenticated := r.authMiddleware.Authenticate()
	optional := r.authMiddleware.OptionalAuthenticate()

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", ctl.Auth.Register)
			auth.POST("/login", ctl.Auth.Login)
			auth.GET("/me", authenticated, ctl.Auth.GetMe)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", optional, ctl.Order.CreateOrder)
			orders.GET("", authenticated, ctl.Order.GetOrders)
			orders.GET("/:number", authenticated, ctl.Order.GetOrderByNumber)
			orders.GET("/:number/shipment", authenticated, ctl.Order.GetShipment)
			orders.POST("/:number/cancel", authenticated, ctl.Order.CancelOrder)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/intent", optional, ctl.Payment.CreatePaymentIntent)
			payments.POST("/verify", optional, ctl.Payment.VerifyPayment)
			// authenticated by the gateway signature
			payments.POST("/webhook", ctl.Payment.Webhook)
		}

		v1.POST("/coupons/validate", optional, ctl.Coupon.ValidateCoupon)

		returns := v1.Group("/returns")
		{
			returns.POST("", optional, ctl.Return.CreateReturn)
			returns.GET("/mine", authenticated, ctl.Return.GetMyReturns)
		}

		v1.POST("/uploads/return-photos/presign", optional, ctl.Upload.PresignReturnPhoto)

		admin := v1.Group("/admin", authenticated, r.authMiddleware.RequireRole(model.RoleAdmin))
		{
			admin.GET("/orders", ctl.Order.ListOrders)
			admin.PUT("/orders/:id/status", ctl.Order.UpdateOrderStatus)
			admin.POST("/orders/:id/refund", ctl.Order.RefundOrder)

			admin.POST("/coupons", ctl.Coupon.CreateCoupon)
			admin.GET("/coupons", ctl.Coupon.ListCoupons)
			admin.PUT("/coupons/:id/deactivate", ctl.Coupon.DeactivateCoupon)

			admin.GET("/returns", ctl.Return.ListReturns)
			admin.GET("/returns/:id", ctl.Return.GetReturn)
			admin.POST("/returns/:id/approve", ctl.Return.ApproveReturn)
			admin.POST("/returns/:id/reject", ctl.Return.RejectReturn)
			admin.POST("/returns/:id/complete", ctl.Return.CompleteReturn)

			admin.POST("/shipments/poll", ctl.Shipment.PollTracking)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
