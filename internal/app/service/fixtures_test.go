package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/db"
	"github.com/ikkim/storefront-backend/internal/events"
	"github.com/ikkim/storefront-backend/pkg/carrier"
	"github.com/ikkim/storefront-backend/pkg/idempotency"
	"github.com/ikkim/storefront-backend/pkg/mailer"
	"github.com/ikkim/storefront-backend/pkg/payment/razorpay"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []events.OrderConfirmed
}

func (p *fakePublisher) PublishOrderConfirmed(_ context.Context, evt events.OrderConfirmed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) published() []events.OrderConfirmed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.OrderConfirmed(nil), p.events...)
}

type fakeGateway struct {
	mu          sync.Mutex
	orderSeq    int
	refundSeq   int
	createErr   error
	refundErr   error
	refundCalls []string
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", g.createErr
	}
	g.orderSeq++
	return fmt.Sprintf("order_test_%d", g.orderSeq), nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, paymentID)
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refundSeq++
	return fmt.Sprintf("rfnd_test_%d", g.refundSeq), nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return razorpay.VerifySignature([]byte(orderID+"|"+paymentID), signature, testKeySecret)
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return razorpay.VerifySignature(body, signature, testWebhookSecret)
}

func (g *fakeGateway) Currency() string { return "INR" }
func (g *fakeGateway) KeyID() string    { return "rzp_test_key" }

type fakeCarrier struct {
	mu            sync.Mutex
	shipmentSeq   int
	shipmentCalls int
	pickupCalls   int
	pickupErr     error
	shipmentErr   error
	track         map[string]carrier.Status
}

func (c *fakeCarrier) Name() string { return "testcourier" }

func (c *fakeCarrier) CreatePickup(_ context.Context, addr carrier.Address, typ carrier.PickupType, reference string) (*carrier.PickupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pickupCalls++
	if c.pickupErr != nil {
		return nil, c.pickupErr
	}
	return &carrier.PickupResult{Success: true, Waybill: "RWB-" + reference}, nil
}

func (c *fakeCarrier) CreateShipment(_ context.Context, req carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shipmentCalls++
	if c.shipmentErr != nil {
		return nil, c.shipmentErr
	}
	c.shipmentSeq++
	return &carrier.ShipmentResult{Success: true, TrackingNumber: fmt.Sprintf("AWB%06d", c.shipmentSeq)}, nil
}

func (c *fakeCarrier) TrackShipment(_ context.Context, trackingNumber string) (*carrier.TrackResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.track[trackingNumber]
	if !ok {
		return nil, errors.New("unknown waybill")
	}
	return &carrier.TrackResult{Success: true, RawStatus: string(status), Status: status}, nil
}

type sentNotification struct {
	Recipient string
	Kind      mailer.Kind
	Data      map[string]interface{}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, recipient string, kind mailer.Kind, data map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipient, Kind: kind, Data: data})
	return nil
}

func (n *fakeNotifier) kinds() []mailer.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []mailer.Kind
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

var testPricing = config.PricingConfig{
	TaxRate:               0,
	FlatShippingCost:      50,
	FreeShippingThreshold: 999,
}

type testEnv struct {
	db *gorm.DB

	productRepo  repository.ProductRepository
	orderRepo    repository.OrderRepository
	paymentRepo  repository.PaymentRepository
	couponRepo   repository.CouponRepository
	shippingRepo repository.ShippingRepository
	returnRepo   repository.ReturnRepository
	userRepo     repository.UserRepository

	publisher *fakePublisher
	gateway   *fakeGateway
	carrier   *fakeCarrier
	notifier  *fakeNotifier
	claims    *idempotency.MemoryStore

	coupons   *couponService
	orders    *orderService
	payments  *paymentService
	shipments *shipmentService
	returns   *returnService
}

func setupServiceTest(t *testing.T) *testEnv {
	t.Helper()

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	env := &testEnv{
		db:           testDB,
		productRepo:  repository.NewProductRepository(testDB),
		orderRepo:    repository.NewOrderRepository(testDB),
		paymentRepo:  repository.NewPaymentRepository(testDB),
		couponRepo:   repository.NewCouponRepository(testDB),
		shippingRepo: repository.NewShippingRepository(testDB),
		returnRepo:   repository.NewReturnRepository(testDB),
		userRepo:     repository.NewUserRepository(testDB),
		publisher:    &fakePublisher{},
		gateway:      &fakeGateway{},
		carrier:      &fakeCarrier{track: map[string]carrier.Status{}},
		notifier:     &fakeNotifier{},
		claims:       idempotency.NewMemoryStore(time.Hour, time.Hour),
	}

	env.coupons = NewCouponService(env.couponRepo, env.orderRepo).(*couponService)
	env.orders = NewOrderService(testDB, env.orderRepo, env.productRepo, env.coupons, env.publisher, testPricing).(*orderService)
	env.payments = NewPaymentService(testDB, env.paymentRepo, env.orderRepo, env.productRepo, env.couponRepo,
		env.orders, env.gateway, env.claims, env.publisher, env.notifier).(*paymentService)
	env.shipments = NewShipmentService(testDB, env.shippingRepo, env.orderRepo, env.carrier).(*shipmentService)
	env.returns = NewReturnService(testDB, env.returnRepo, env.orderRepo, env.paymentRepo, env.orders, env.coupons,
		env.gateway, env.carrier, env.notifier, config.ReturnsConfig{MaxPhotos: 4, WindowDays: 7}).(*returnService)

	return env
}

func (env *testEnv) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		PasswordHash: "hash",
		Name:         "Test User",
		Phone:        "9876543210",
		Role:         model.RoleUser,
	}
	require.NoError(t, env.userRepo.Create(user))
	return user
}

func (env *testEnv) createProduct(t *testing.T, sku string, price float64, stock int) *model.Product {
	t.Helper()
	product := &model.Product{
		Name:  "Product " + sku,
		SKU:   sku,
		Price: price,
		Stock: stock,
	}
	require.NoError(t, env.productRepo.Create(product))
	return product
}

func (env *testEnv) stockOf(t *testing.T, productID uint) int {
	t.Helper()
	p, err := env.productRepo.FindByID(productID)
	require.NoError(t, err)
	return p.Stock
}

func testAddress() model.AddressSnapshot {
	return model.AddressSnapshot{
		FullName:   "Asha Rao",
		Phone:      "+91 98765 43210",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
	}
}

// placeOrder creates a PENDING order for qty units of product.
func (env *testEnv) placeOrder(t *testing.T, userID *uint, product *model.Product, qty int) *model.Order {
	t.Helper()
	order, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          userID,
		ContactEmail:    "buyer@example.com",
		Items:           []OrderLineInput{{ProductID: product.ID, Quantity: qty}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	return order
}

// paidOrder places an order and captures a payment for it.
func (env *testEnv) paidOrder(t *testing.T, userID *uint, product *model.Product, qty int) (*model.Order, *model.Payment) {
	t.Helper()
	order := env.placeOrder(t, userID, product, qty)
	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		OrderID: order.ID,
		UserID:  userID,
	})
	require.NoError(t, err)

	payID := "pay_" + intent.GatewayOrderID
	payment, err := env.payments.VerifyPayment(context.Background(), VerifyPaymentInput{
		OrderID:          order.ID,
		UserID:           userID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: payID,
		Signature:        razorpay.Sign([]byte(intent.GatewayOrderID+"|"+payID), testKeySecret),
	})
	require.NoError(t, err)

	order, err = env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	return order, payment
}

// deliveredOrder seeds a paid order that has been delivered at deliveredAt.
func (env *testEnv) deliveredOrder(t *testing.T, userID *uint, product *model.Product, qty int, deliveredAt time.Time) *model.Order {
	t.Helper()
	order, _ := env.paidOrder(t, userID, product, qty)

	ok, err := env.orderRepo.TransitionStatus(order.ID, model.NonTerminalOrderStatuses(), model.OrderStatusDelivered, nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.shippingRepo.CreateIfAbsent(&model.Shipping{
		OrderID:        order.ID,
		Carrier:        "testcourier",
		TrackingNumber: fmt.Sprintf("AWB-D-%d", order.ID),
		Status:         model.ShippingStatusDelivered,
		DeliveredAt:    &deliveredAt,
	})
	require.NoError(t, err)

	order, err = env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	return order
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func ptr[T any](v T) *T {
	return &v
}

func jsonIDs(ids ...uint) datatypes.JSONSlice[uint] {
	return datatypes.JSONSlice[uint](ids)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
