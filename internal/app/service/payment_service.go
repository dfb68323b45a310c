package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	apperrors "github.com/ikkim/storefront-backend/internal/errors"
	"github.com/ikkim/storefront-backend/internal/events"
	"github.com/ikkim/storefront-backend/pkg/idempotency"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/ikkim/storefront-backend/pkg/mailer"
	"github.com/ikkim/storefront-backend/pkg/payment/razorpay"
	"github.com/ikkim/storefront-backend/pkg/util"
	"gorm.io/gorm"
)

const (
	gatewayName       = "razorpay"
	webhookClaimTTL   = 24 * time.Hour
	webhookClaimScope = "webhook:"
)

type CreatePaymentIntentInput struct {
	OrderID     uint
	UserID      *uint
	AmountMinor int64
	Method      string
}

// PaymentIntent is what the client needs to open the gateway checkout.
type PaymentIntent struct {
	PaymentID      uint   `json:"payment_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	AmountMinor    int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
	OrderNumber    string `json:"order_number"`
}

type VerifyPaymentInput struct {
	OrderID          uint
	UserID           *uint
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type WebhookResult struct {
	Event   string `json:"event"`
	Applied bool   `json:"applied"`
}

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntent, error)
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*model.Payment, error)
	HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error)
	RefundOrder(ctx context.Context, orderID uint, reason string) (*model.Order, error)
	ListPayments(orderID uint) ([]model.Payment, error)
}

type paymentService struct {
	db          *gorm.DB
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	couponRepo  repository.CouponRepository
	orderSvc    OrderService
	gateway     PaymentGateway
	claims      idempotency.Store
	publisher   events.Publisher
	notifier    mailer.Notifier
	now         func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	couponRepo repository.CouponRepository,
	orderSvc OrderService,
	gateway PaymentGateway,
	claims idempotency.Store,
	publisher events.Publisher,
	notifier mailer.Notifier,
) PaymentService {
	return &paymentService{
		db:          db,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		couponRepo:  couponRepo,
		orderSvc:    orderSvc,
		gateway:     gateway,
		claims:      claims,
		publisher:   publisher,
		notifier:    notifier,
		now:         time.Now,
	}
}

func (s *paymentService) requireGateway() error {
	if s.gateway == nil {
		return fmt.Errorf("%w: gateway not configured", ErrGatewayFailure)
	}
	return nil
}

// checkOwner allows anyone to act on a guest order and only the owner on a
// customer's order.
func checkOwner(order *model.Order, userID *uint) error {
	if order.UserID == nil {
		return nil
	}
	if userID == nil || *order.UserID != *userID {
		return ErrOrderNotOwned
	}
	return nil
}

// CreatePaymentIntent mints a gateway order for a PENDING order and records
// a PENDING payment keyed by the gateway order id.
func (s *paymentService) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntent, error) {
	logger.Info("Creating payment intent", map[string]interface{}{
		"order_id": input.OrderID,
		"amount":   input.AmountMinor,
	})

	if err := s.requireGateway(); err != nil {
		return nil, err
	}

	order, err := s.orderSvc.GetOrder(input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(order, input.UserID); err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, conflictf("order %s is %s and cannot be paid", order.OrderNumber, order.Status)
	}

	expected := util.ToMinorUnits(order.TotalAmount)
	if input.AmountMinor != 0 && input.AmountMinor != expected {
		logger.Warn("Payment intent amount mismatch", map[string]interface{}{
			"order_id": order.ID,
			"expected": expected,
			"received": input.AmountMinor,
		})
		return nil, ErrAmountMismatch
	}
	if expected <= 0 {
		return nil, validationf("order %s has nothing to pay", order.OrderNumber)
	}

	currency := s.gateway.Currency()
	notes := map[string]string{
		"order_number": order.OrderNumber,
		"order_id":     strconv.FormatUint(uint64(order.ID), 10),
	}
	gatewayOrderID, err := s.gateway.CreateOrder(ctx, expected, currency, order.OrderNumber, notes)
	if err != nil {
		logger.Error("Gateway order creation failed", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}

	payment := &model.Payment{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Currency:      currency,
		Method:        input.Method,
		Gateway:       gatewayName,
		TransactionID: gatewayOrderID,
		Status:        model.PaymentStatusPending,
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"gateway_order_id": gatewayOrderID,
		"amount":           expected,
		"currency":         currency,
	})
	if err := s.paymentRepo.AppendEvent(payment.ID, "intent.created", payload); err != nil {
		logger.Error("Failed to record payment event", err, map[string]interface{}{
			"payment_id": payment.ID,
		})
	}

	logger.Info("Payment intent created", map[string]interface{}{
		"payment_id":       payment.ID,
		"gateway_order_id": gatewayOrderID,
	})

	return &PaymentIntent{
		PaymentID:      payment.ID,
		GatewayOrderID: gatewayOrderID,
		AmountMinor:    expected,
		Currency:       currency,
		KeyID:          s.gateway.KeyID(),
		OrderNumber:    order.OrderNumber,
	}, nil
}

// VerifyPayment checks the checkout signature reported by the client and,
// when it holds, completes the payment.
func (s *paymentService) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*model.Payment, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}

	payment, err := s.paymentRepo.FindByTransactionID(input.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.OrderID != input.OrderID {
		return nil, ErrPaymentNotFound
	}
	order, err := s.orderSvc.GetOrder(payment.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(order, input.UserID); err != nil {
		return nil, err
	}

	if !s.gateway.VerifyPaymentSignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		logger.Warn("Payment signature mismatch", map[string]interface{}{
			"payment_id":       payment.ID,
			"gateway_order_id": input.GatewayOrderID,
		})
		return nil, ErrInvalidSignature
	}

	switch payment.Status {
	case model.PaymentStatusCompleted:
		return payment, nil
	case model.PaymentStatusPending:
	default:
		return nil, conflictf("payment %d is %s", payment.ID, payment.Status)
	}

	payload, _ := json.Marshal(map[string]string{
		"gateway_order_id":   input.GatewayOrderID,
		"gateway_payment_id": input.GatewayPaymentID,
	})
	if _, err := s.capture(ctx, payment, input.GatewayPaymentID, "checkout.verified", payload, "verify"); err != nil {
		return nil, err
	}
	return s.paymentRepo.FindByTransactionID(input.GatewayOrderID)
}

// capture marks the payment COMPLETED and confirms the order in one
// transaction. Side effects fire only for the call that changed the payment.
func (s *paymentService) capture(ctx context.Context, payment *model.Payment, gatewayPaymentID, event string, payload []byte, source string) (bool, error) {
	paidAt := s.now()
	var paymentChanged, orderConfirmed bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		payments := s.paymentRepo.WithTx(tx)
		changed, err := payments.MarkCompleted(payment.ID, gatewayPaymentID, paidAt, payload)
		if err != nil {
			return err
		}
		if err := payments.AppendEvent(payment.ID, event, payload); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		paymentChanged = true
		orderConfirmed, err = confirmOrderTx(tx, s.orderRepo, s.couponRepo, payment.OrderID, paidAt)
		return err
	})
	if err != nil {
		return false, err
	}
	if !paymentChanged {
		return false, nil
	}
	if !orderConfirmed {
		logger.Error("Payment captured for an order that is no longer pending; manual refund required", nil, map[string]interface{}{
			"payment_id": payment.ID,
			"order_id":   payment.OrderID,
		})
		return true, nil
	}

	logger.Info("Payment completed and order confirmed", map[string]interface{}{
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
		"source":     source,
	})

	order, err := s.orderRepo.FindByID(payment.OrderID)
	if err != nil {
		logger.Error("Failed to reload confirmed order", err, map[string]interface{}{
			"order_id": payment.OrderID,
		})
		return true, nil
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, events.OrderConfirmed{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Source:      source,
		ConfirmedAt: paidAt,
	}); err != nil {
		logger.Error("Failed to publish order confirmation", err, map[string]interface{}{
			"order_id": order.ID,
		})
	}
	notifyAsync(s.notifier, orderRecipient(order), mailer.KindOrderConfirmed, map[string]interface{}{
		"order_number": order.OrderNumber,
		"total_amount": fmt.Sprintf("%.2f", order.TotalAmount),
	})
	return true, nil
}

// HandleWebhook applies a signed gateway event. Replays of an event already
// applied are acknowledged without side effects.
func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		logger.Warn("Webhook signature rejected", map[string]interface{}{
			"event_id": eventID,
		})
		return nil, ErrInvalidSignature
	}

	evt, err := razorpay.ParseWebhook(body)
	if err != nil {
		return nil, validationf("malformed webhook: %v", err)
	}
	result := &WebhookResult{Event: evt.Name()}

	claimed := false
	if eventID != "" && s.claims != nil {
		ok, err := s.claims.Claim(ctx, webhookClaimScope+eventID, webhookClaimTTL)
		switch {
		case err != nil:
			logger.Warn("Webhook claim unavailable, processing anyway", map[string]interface{}{
				"event_id": eventID,
				"error":    err.Error(),
			})
		case !ok:
			logger.Info("Duplicate webhook delivery ignored", map[string]interface{}{
				"event_id": eventID,
				"event":    evt.Name(),
			})
			return result, nil
		default:
			claimed = true
		}
	}

	applied, err := s.dispatch(ctx, evt, body)
	if err != nil {
		if claimed {
			if relErr := s.claims.Release(context.WithoutCancel(ctx), webhookClaimScope+eventID); relErr != nil {
				logger.Error("Failed to release webhook claim", relErr, map[string]interface{}{
					"event_id": eventID,
				})
			}
		}
		logger.Error("Webhook processing failed", err, map[string]interface{}{
			"event":    evt.Name(),
			"event_id": eventID,
		})
		return nil, err
	}

	result.Applied = applied
	logger.Info("Webhook processed", map[string]interface{}{
		"event":    evt.Name(),
		"event_id": eventID,
		"applied":  applied,
	})
	return result, nil
}

func (s *paymentService) dispatch(ctx context.Context, evt razorpay.WebhookEvent, body []byte) (bool, error) {
	switch e := evt.(type) {
	case razorpay.PaymentCaptured:
		payment, err := s.lookupByGatewayOrder(e.OrderID)
		if err != nil || payment == nil {
			return false, err
		}
		if payment.Status == model.PaymentStatusCompleted {
			return false, nil
		}
		if payment.Status != model.PaymentStatusPending {
			logger.Warn("Capture received for a closed payment", map[string]interface{}{
				"payment_id": payment.ID,
				"status":     payment.Status,
			})
			return false, nil
		}
		return s.capture(ctx, payment, e.PaymentID, e.Name(), body, "webhook")

	case razorpay.PaymentFailed:
		payment, err := s.lookupByGatewayOrder(e.OrderID)
		if err != nil || payment == nil {
			return false, err
		}
		return s.fail(payment, e, body)

	case razorpay.RefundProcessed:
		payment, err := s.paymentRepo.FindByGatewayPaymentID(e.PaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn("Refund for unknown payment acknowledged", map[string]interface{}{
					"gateway_payment_id": e.PaymentID,
				})
				return false, nil
			}
			return false, err
		}
		var changed bool
		err = s.db.Transaction(func(tx *gorm.DB) error {
			payments := s.paymentRepo.WithTx(tx)
			var err error
			if changed, err = payments.MarkRefunded(payment.ID, e.RefundID, body); err != nil {
				return err
			}
			return payments.AppendEvent(payment.ID, e.Name(), body)
		})
		return changed, err

	default:
		logger.Debug("Webhook event ignored", map[string]interface{}{
			"event": evt.Name(),
		})
		return false, nil
	}
}

// lookupByGatewayOrder returns nil without error for payments this service
// never created, so the gateway stops redelivering them.
func (s *paymentService) lookupByGatewayOrder(gatewayOrderID string) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByTransactionID(gatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Webhook for unknown payment acknowledged", map[string]interface{}{
				"gateway_order_id": gatewayOrderID,
			})
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// fail marks the payment FAILED and cancels its still-pending order,
// returning reserved stock.
func (s *paymentService) fail(payment *model.Payment, e razorpay.PaymentFailed, body []byte) (bool, error) {
	var changed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		payments := s.paymentRepo.WithTx(tx)
		var err error
		changed, err = payments.MarkFailed(payment.ID, e.PaymentID, e.ErrorDescription, body)
		if err != nil {
			return err
		}
		if err := payments.AppendEvent(payment.ID, e.Name(), body); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		err = closeOrderTx(tx, s.orderRepo, s.productRepo, payment.OrderID,
			[]model.OrderStatus{model.OrderStatusPending}, model.OrderStatusCancelled)
		if errors.Is(err, apperrors.ErrConflict) {
			logger.Warn("Failed payment for an order that is no longer pending", map[string]interface{}{
				"payment_id": payment.ID,
				"order_id":   payment.OrderID,
			})
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		logger.Info("Payment failed and order cancelled", map[string]interface{}{
			"payment_id": payment.ID,
			"order_id":   payment.OrderID,
			"reason":     e.ErrorDescription,
		})
	}
	return changed, nil
}

// RefundOrder refunds the captured payment of an order through the gateway
// and closes the order as REFUNDED.
func (s *paymentService) RefundOrder(ctx context.Context, orderID uint, reason string) (*model.Order, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}

	order, err := s.orderSvc.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, conflictf("order %s is already %s", order.OrderNumber, order.Status)
	}
	payment, err := s.paymentRepo.FindCompletedByOrderID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conflictf("order %s has no captured payment", order.OrderNumber)
		}
		return nil, err
	}

	refundID, err := s.gateway.Refund(ctx, payment.GatewayPaymentID, util.ToMinorUnits(payment.Amount), map[string]string{
		"order_number": order.OrderNumber,
		"reason":       reason,
	})
	if err != nil {
		logger.Error("Gateway refund failed", err, map[string]interface{}{
			"order_id":   orderID,
			"payment_id": payment.ID,
		})
		recordRefundTimeout(s.paymentRepo, payment, err, map[string]interface{}{
			"order_number": order.OrderNumber,
			"reason":       reason,
		})
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	if err := s.paymentRepo.SetRefundID(payment.ID, refundID); err != nil {
		logger.Error("Failed to store refund id", err, map[string]interface{}{
			"payment_id": payment.ID,
			"refund_id":  refundID,
		})
	}

	logger.Info("Refund issued", map[string]interface{}{
		"order_id":  orderID,
		"refund_id": refundID,
	})
	return s.orderSvc.CancelOrRefund(ctx, orderID, model.OrderStatusRefunded, reason)
}

// recordRefundTimeout appends a payment event when a refund call timed out.
// The gateway may still have processed it, so the attempt is kept for reconciliation.
func recordRefundTimeout(payments repository.PaymentRepository, payment *model.Payment, err error, fields map[string]interface{}) {
	if !errors.Is(err, razorpay.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return
	}
	body := map[string]interface{}{
		"gateway_payment_id": payment.GatewayPaymentID,
		"amount":             payment.Amount,
		"error":              err.Error(),
	}
	for k, v := range fields {
		body[k] = v
	}
	payload, _ := json.Marshal(body)
	if err := payments.AppendEvent(payment.ID, "refund.attempt_timed_out", payload); err != nil {
		logger.Error("Failed to record refund timeout", err, map[string]interface{}{
			"payment_id": payment.ID,
		})
		return
	}
	logger.Warn("Refund attempt timed out; gateway state unknown", map[string]interface{}{
		"payment_id":         payment.ID,
		"gateway_payment_id": payment.GatewayPaymentID,
	})
}

func (s *paymentService) ListPayments(orderID uint) ([]model.Payment, error) {
	return s.paymentRepo.FindByOrderID(orderID)
}
