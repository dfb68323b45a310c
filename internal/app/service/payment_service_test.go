package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ikkim/storefront-backend/internal/app/model"
	apperrors "github.com/ikkim/storefront-backend/internal/errors"
	"github.com/ikkim/storefront-backend/pkg/payment/razorpay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturedBody(gatewayOrderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"notes":[]}}}}`, paymentID, gatewayOrderID))
}

func failedBody(gatewayOrderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"error_description":"card declined"}}}}`, paymentID, gatewayOrderID))
}

func signWebhook(body []byte) string {
	return razorpay.Sign(body, testWebhookSecret)
}

func TestPaymentService_CreatePaymentIntent(t *testing.T) {
	env := setupServiceTest(t)
	user := env.createUser(t, "buyer@example.com")
	product := env.createProduct(t, "SKU-1", 499.5, 10)
	order := env.placeOrder(t, &user.ID, product, 2)

	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		OrderID:     order.ID,
		UserID:      &user.ID,
		AmountMinor: 99900,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99900), intent.AmountMinor)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, "rzp_test_key", intent.KeyID)
	assert.Equal(t, order.OrderNumber, intent.OrderNumber)

	payment, err := env.paymentRepo.FindByTransactionID(intent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Equal(t, order.ID, payment.OrderID)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
}

func TestPaymentService_CreatePaymentIntent_Errors(t *testing.T) {
	env := setupServiceTest(t)
	owner := env.createUser(t, "owner@example.com")
	stranger := env.createUser(t, "stranger@example.com")
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, &owner.ID, product, 1)

	_, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID, UserID: &stranger.ID})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID, UserID: &owner.ID, AmountMinor: 1})
	assert.ErrorIs(t, err, ErrAmountMismatch)

	env.gateway.createErr = errors.New("gateway down")
	_, err = env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID, UserID: &owner.ID})
	assert.ErrorIs(t, err, apperrors.ErrGateway)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
	assert.Equal(t, 9, env.stockOf(t, product.ID))

	payments, err := env.payments.ListPayments(order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPaymentService_VerifyPayment(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, nil, product, 1)

	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	input := VerifyPaymentInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		Signature:        "forged",
	}
	_, err = env.payments.VerifyPayment(context.Background(), input)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)

	input.Signature = razorpay.Sign([]byte(intent.GatewayOrderID+"|pay_1"), testKeySecret)
	payment, err := env.payments.VerifyPayment(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "pay_1", payment.GatewayPaymentID)
	assert.NotNil(t, payment.PaidAt)

	stored, err = env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, stored.Status)
	assert.NotNil(t, stored.PaidAt)

	// Verifying again is an idempotent success.
	_, err = env.payments.VerifyPayment(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, env.publisher.published(), 1)
	assert.Equal(t, "verify", env.publisher.published()[0].Source)
}

func TestPaymentService_HandleWebhook_ReplayIsIdempotent(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, nil, product, 2)

	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	body := capturedBody(intent.GatewayOrderID, "pay_42")
	sig := signWebhook(body)

	var wg sync.WaitGroup
	results := make([]*WebhookResult, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// No event id: idempotence must come from the payment state itself.
			results[i], errs[i] = env.payments.HandleWebhook(context.Background(), body, sig, "")
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Applied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	payments, err := env.payments.ListPayments(order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentStatusCompleted, payments[0].Status)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, stored.Status)
	assert.Len(t, env.publisher.published(), 1)
	assert.Equal(t, 8, env.stockOf(t, product.ID))
}

func TestPaymentService_HandleWebhook_DuplicateEventID(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, nil, product, 1)
	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	body := capturedBody(intent.GatewayOrderID, "pay_7")
	first, err := env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "evt_1")
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "evt_1")
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, razorpay.EventPaymentCaptured, second.Event)
}

func TestPaymentService_HandleWebhook_InvalidSignature(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, nil, product, 1)
	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	body := capturedBody(intent.GatewayOrderID, "pay_1")
	_, err = env.payments.HandleWebhook(context.Background(), body, razorpay.Sign(body, "wrong-secret"), "evt_x")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	// A forged body is rejected before parsing, even when malformed.
	_, err = env.payments.HandleWebhook(context.Background(), []byte("not json"), "deadbeef", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
	assert.Empty(t, env.publisher.published())

	// The rejected attempt did not burn the event id.
	res, err := env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "evt_x")
	require.NoError(t, err)
	assert.True(t, res.Applied)
}

func TestPaymentService_HandleWebhook_PaymentFailedRestoresStock(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, nil, product, 3)
	require.Equal(t, 7, env.stockOf(t, product.ID))

	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID})
	require.NoError(t, err)

	body := failedBody(intent.GatewayOrderID, "pay_9")
	for i := 0; i < 3; i++ {
		_, err := env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "")
		require.NoError(t, err)
	}

	payment, err := env.paymentRepo.FindByTransactionID(intent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "card declined", payment.FailureReason)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.Equal(t, 10, env.stockOf(t, product.ID))
}

func TestPaymentService_HandleWebhook_RefundProcessed(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	_, payment := env.paidOrder(t, nil, product, 1)

	body := []byte(fmt.Sprintf(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":%q,"amount":15000}}}}`, payment.GatewayPaymentID))
	res, err := env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "")
	require.NoError(t, err)
	assert.True(t, res.Applied)

	stored, err := env.paymentRepo.FindByTransactionID(payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
	assert.Equal(t, "rfnd_1", stored.RefundID)
}

func TestPaymentService_HandleWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	env := setupServiceTest(t)

	body := capturedBody("order_unknown", "pay_unknown")
	res, err := env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "")
	require.NoError(t, err)
	assert.False(t, res.Applied)

	body = []byte(`{"event":"order.paid","payload":{}}`)
	res, err = env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "")
	require.NoError(t, err)
	assert.Equal(t, "order.paid", res.Event)
	assert.False(t, res.Applied)
}

func TestPaymentService_CaptureCountsCouponUse(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 1000, 10)
	coupon, err := env.coupons.CreateCoupon(CreateCouponInput{
		Code:          "LIMITED",
		DiscountType:  model.DiscountFixedAmount,
		DiscountValue: 100,
		UsageLimit:    ptr(10),
	})
	require.NoError(t, err)

	order, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ContactEmail:    "g@example.com",
		Items:           []OrderLineInput{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		CouponCode:      "LIMITED",
	})
	require.NoError(t, err)

	intent, err := env.payments.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{OrderID: order.ID})
	require.NoError(t, err)
	body := capturedBody(intent.GatewayOrderID, "pay_c")
	for i := 0; i < 2; i++ {
		_, err = env.payments.HandleWebhook(context.Background(), body, signWebhook(body), "")
		require.NoError(t, err)
	}

	stored, err := env.couponRepo.FindByID(coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)
}

func TestPaymentService_RefundOrder(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order, payment := env.paidOrder(t, nil, product, 2)
	require.Equal(t, 8, env.stockOf(t, product.ID))

	refunded, err := env.payments.RefundOrder(context.Background(), order.ID, "damaged in warehouse")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, 10, env.stockOf(t, product.ID))
	assert.Equal(t, []string{payment.GatewayPaymentID}, env.gateway.refundCalls)

	stored, err := env.paymentRepo.FindByTransactionID(payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "rfnd_test_1", stored.RefundID)

	_, err = env.payments.RefundOrder(context.Background(), order.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPaymentService_RefundOrder_GatewayFailure(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order, _ := env.paidOrder(t, nil, product, 1)
	env.gateway.refundErr = errors.New("timeout")

	_, err := env.payments.RefundOrder(context.Background(), order.ID, "x")
	assert.ErrorIs(t, err, apperrors.ErrGateway)

	stored, err := env.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, 9, env.stockOf(t, product.ID))
}

func TestPaymentService_RefundOrder_TimeoutIsRecorded(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order, payment := env.paidOrder(t, nil, product, 1)
	env.gateway.refundErr = fmt.Errorf("refund payment %s: %w", payment.GatewayPaymentID, razorpay.ErrTimeout)

	_, err := env.payments.RefundOrder(context.Background(), order.ID, "customer request")
	assert.ErrorIs(t, err, apperrors.ErrGateway)

	var timedOut []model.PaymentEvent
	require.NoError(t, env.db.Where("payment_id = ? AND event = ?", payment.ID, "refund.attempt_timed_out").
		Find(&timedOut).Error)
	require.Len(t, timedOut, 1)
	assert.Contains(t, string(timedOut[0].Payload), order.OrderNumber)
	assert.Contains(t, string(timedOut[0].Payload), payment.GatewayPaymentID)

	// A plain rejection is not ambiguous and leaves no reconciliation entry.
	env.gateway.refundErr = errors.New("payment not captured")
	_, err = env.payments.RefundOrder(context.Background(), order.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrGateway)

	var count int64
	require.NoError(t, env.db.Model(&model.PaymentEvent{}).
		Where("payment_id = ? AND event = ?", payment.ID, "refund.attempt_timed_out").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPaymentService_RefundOrder_Unpaid(t *testing.T) {
	env := setupServiceTest(t)
	product := env.createProduct(t, "SKU-1", 100, 10)
	order := env.placeOrder(t, nil, product, 1)

	_, err := env.payments.RefundOrder(context.Background(), order.ID, "x")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
