package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/db"
	"github.com/ikkim/storefront-backend/internal/events"
	"github.com/ikkim/storefront-backend/internal/middleware"
	"github.com/ikkim/storefront-backend/internal/storage"
	"github.com/ikkim/storefront-backend/pkg/carrier"
	"github.com/ikkim/storefront-backend/pkg/idempotency"
	"github.com/ikkim/storefront-backend/pkg/mailer"
	"github.com/ikkim/storefront-backend/pkg/payment/razorpay"
	"github.com/ikkim/storefront-backend/pkg/util"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testJWTSecret     = "controller-test-secret"
	testKeySecret     = "ctl_key_secret"
	testWebhookSecret = "ctl_webhook_secret"
)

type stubGateway struct {
	mu  sync.Mutex
	seq int
}

func (g *stubGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("order_ctl_%d", g.seq), nil
}

func (g *stubGateway) Refund(_ context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	return "rfnd_" + paymentID, nil
}

func (g *stubGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return razorpay.VerifySignature([]byte(orderID+"|"+paymentID), signature, testKeySecret)
}

func (g *stubGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return razorpay.VerifySignature(body, signature, testWebhookSecret)
}

func (g *stubGateway) Currency() string { return "INR" }
func (g *stubGateway) KeyID() string    { return "rzp_test_ctl" }

type stubCarrier struct{}

func (stubCarrier) Name() string { return "testcourier" }

func (stubCarrier) CreatePickup(_ context.Context, _ carrier.Address, _ carrier.PickupType, reference string) (*carrier.PickupResult, error) {
	return &carrier.PickupResult{Success: true, Waybill: "RWB-" + reference}, nil
}

func (stubCarrier) CreateShipment(_ context.Context, req carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	return &carrier.ShipmentResult{Success: true, TrackingNumber: "AWB-" + req.OrderNumber}, nil
}

func (stubCarrier) TrackShipment(_ context.Context, trackingNumber string) (*carrier.TrackResult, error) {
	return &carrier.TrackResult{Success: true, Status: carrier.StatusInTransit, RawStatus: "In Transit"}, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderConfirmed(context.Context, events.OrderConfirmed) error { return nil }

type stubPresigner struct{}

func (stubPresigner) PresignReturnPhoto(_ context.Context, filename, contentType string, size int64) (*storage.PresignedURLResponse, error) {
	if err := storage.ValidateContentType(contentType, []string{"image/jpeg", "image/png"}); err != nil {
		return nil, err
	}
	return &storage.PresignedURLResponse{
		UploadURL: "https://bucket.example.com/returns/x.jpg?sig=1",
		FileURL:   "https://cdn.example.com/returns/x.jpg",
		Key:       "returns/x.jpg",
	}, nil
}

type testServer struct {
	db          *gorm.DB
	router      *gin.Engine
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
	shipping    repository.ShippingRepository
	orders      service.OrderService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	orderRepo := repository.NewOrderRepository(testDB)
	productRepo := repository.NewProductRepository(testDB)
	userRepo := repository.NewUserRepository(testDB)
	couponRepo := repository.NewCouponRepository(testDB)
	paymentRepo := repository.NewPaymentRepository(testDB)
	shippingRepo := repository.NewShippingRepository(testDB)
	returnRepo := repository.NewReturnRepository(testDB)

	gateway := &stubGateway{}
	notifier := mailer.LogNotifier{}
	pricing := config.PricingConfig{FlatShippingCost: 50, FreeShippingThreshold: 999}

	authSvc := service.NewAuthService(userRepo, testJWTSecret, 15*time.Minute)
	couponSvc := service.NewCouponService(couponRepo, orderRepo)
	orderSvc := service.NewOrderService(testDB, orderRepo, productRepo, couponSvc, nopPublisher{}, pricing)
	paymentSvc := service.NewPaymentService(testDB, paymentRepo, orderRepo, productRepo, couponRepo, orderSvc,
		gateway, idempotency.NewMemoryStore(time.Hour, time.Hour), nopPublisher{}, notifier)
	shipmentSvc := service.NewShipmentService(testDB, shippingRepo, orderRepo, stubCarrier{})
	returnSvc := service.NewReturnService(testDB, returnRepo, orderRepo, paymentRepo, orderSvc, couponSvc,
		gateway, stubCarrier{}, notifier, config.ReturnsConfig{MaxPhotos: 4, WindowDays: 7})

	authCtl := NewAuthController(authSvc)
	orderCtl := NewOrderController(orderSvc, paymentSvc, shipmentSvc)
	paymentCtl := NewPaymentController(paymentSvc)
	couponCtl := NewCouponController(couponSvc, orderSvc)
	returnCtl := NewReturnController(returnSvc)
	uploadCtl := NewUploadController(stubPresigner{})
	shipmentCtl := NewShipmentController(shipmentSvc, 50)

	auth := middleware.NewAuthMiddleware(testJWTSecret)
	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	v1 := r.Group("/api/v1")
	v1.POST("/auth/register", authCtl.Register)
	v1.POST("/auth/login", authCtl.Login)
	v1.GET("/auth/me", auth.Authenticate(), authCtl.GetMe)
	v1.POST("/orders", auth.OptionalAuthenticate(), orderCtl.CreateOrder)
	v1.GET("/orders", auth.Authenticate(), orderCtl.GetOrders)
	v1.GET("/orders/:number", auth.Authenticate(), orderCtl.GetOrderByNumber)
	v1.GET("/orders/:number/shipment", auth.Authenticate(), orderCtl.GetShipment)
	v1.POST("/orders/:number/cancel", auth.Authenticate(), orderCtl.CancelOrder)
	v1.POST("/payments/intent", auth.OptionalAuthenticate(), paymentCtl.CreatePaymentIntent)
	v1.POST("/payments/verify", auth.OptionalAuthenticate(), paymentCtl.VerifyPayment)
	v1.POST("/payments/webhook", paymentCtl.Webhook)
	v1.POST("/coupons/validate", auth.OptionalAuthenticate(), couponCtl.ValidateCoupon)
	v1.POST("/returns", auth.OptionalAuthenticate(), returnCtl.CreateReturn)
	v1.GET("/returns/mine", auth.Authenticate(), returnCtl.GetMyReturns)
	v1.POST("/uploads/return-photos/presign", uploadCtl.PresignReturnPhoto)

	admin := v1.Group("/admin", auth.Authenticate(), auth.RequireRole(model.RoleAdmin))
	admin.GET("/orders", orderCtl.ListOrders)
	admin.PUT("/orders/:id/status", orderCtl.UpdateOrderStatus)
	admin.POST("/orders/:id/refund", orderCtl.RefundOrder)
	admin.POST("/coupons", couponCtl.CreateCoupon)
	admin.GET("/coupons", couponCtl.ListCoupons)
	admin.PUT("/coupons/:id/deactivate", couponCtl.DeactivateCoupon)
	admin.GET("/returns", returnCtl.ListReturns)
	admin.GET("/returns/:id", returnCtl.GetReturn)
	admin.POST("/returns/:id/approve", returnCtl.ApproveReturn)
	admin.POST("/returns/:id/reject", returnCtl.RejectReturn)
	admin.POST("/returns/:id/complete", returnCtl.CompleteReturn)
	admin.POST("/shipments/poll", shipmentCtl.PollTracking)

	return &testServer{
		db:          testDB,
		router:      r,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		shipping:    shippingRepo,
		orders:      orderSvc,
	}
}

func (s *testServer) createUser(t *testing.T, email string, role model.UserRole) (*model.User, string) {
	t.Helper()
	user := &model.User{Email: email, PasswordHash: "hash", Name: "Test User", Phone: "9876543210", Role: role}
	require.NoError(t, s.userRepo.Create(user))
	token, err := util.GenerateAccessToken(user.ID, user.Email, string(role), testJWTSecret, time.Hour)
	require.NoError(t, err)
	return user, token
}

func (s *testServer) createProduct(t *testing.T, sku string, price float64, stock int) *model.Product {
	t.Helper()
	product := &model.Product{Name: "Product " + sku, SKU: sku, Price: price, Stock: stock}
	require.NoError(t, s.productRepo.Create(product))
	return product
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func orderPayload(productID uint, qty int, email string) map[string]interface{} {
	return map[string]interface{}{
		"items":         []map[string]interface{}{{"product_id": productID, "quantity": qty}},
		"contact_email": email,
		"shipping_address": map[string]interface{}{
			"full_name":   "Asha Rao",
			"phone":       "+91 98765 43210",
			"line1":       "12 MG Road",
			"city":        "Bengaluru",
			"postal_code": "560001",
			"country":     "IN",
		},
	}
}

// placeOrder creates an order through the API and returns its number and id.
func (s *testServer) placeOrder(t *testing.T, token string, productID uint, qty int) (string, uint) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/orders", token, orderPayload(productID, qty, "buyer@example.com"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)["order"].(map[string]interface{})
	return order["order_number"].(string), uint(order["id"].(float64))
}

// payOrder runs intent and verify for an order and returns the gateway order id.
func (s *testServer) payOrder(t *testing.T, token string, orderID uint) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/payments/intent", token, map[string]interface{}{"order_id": orderID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	gatewayOrderID := decode(t, w)["gateway_order_id"].(string)

	paymentID := "pay_" + gatewayOrderID
	w = s.do(t, http.MethodPost, "/api/v1/payments/verify", token, map[string]interface{}{
		"order_id":            orderID,
		"razorpay_order_id":   gatewayOrderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  razorpay.Sign([]byte(gatewayOrderID+"|"+paymentID), testKeySecret),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return gatewayOrderID
}
