package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/app/service"
	apperrors "github.com/ikkim/storefront-backend/internal/errors"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

const (
	webhookSignatureHeader = "X-Razorpay-Signature"
	webhookEventIDHeader   = "X-Razorpay-Event-Id"
	maxWebhookBody         = 1 << 20
)

type PaymentController struct {
	paymentService service.PaymentService
}

func NewPaymentController(paymentService service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
	}
}

type CreatePaymentIntentRequest struct {
	OrderID uint   `json:"order_id" binding:"required"`
	Amount  int64  `json:"amount" binding:"min=0"` // minor units; 0 skips the check
	Method  string `json:"method" binding:"max=30"`
}

type VerifyPaymentRequest struct {
	OrderID           uint   `json:"order_id" binding:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

// CreatePaymentIntent opens a gateway order for a pending order
// POST /api/v1/payments/intent
func (ctrl *PaymentController) CreatePaymentIntent(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreatePaymentIntentRequest
	if !bindJSON(c, log, &req) {
		return
	}

	intent, err := ctrl.paymentService.CreatePaymentIntent(c.Request.Context(), service.CreatePaymentIntentInput{
		OrderID:     req.OrderID,
		UserID:      middleware.OptionalUserID(c),
		AmountMinor: req.Amount,
		Method:      req.Method,
	})
	if err != nil {
		respondServiceError(c, log, "Failed to create payment intent", err, map[string]interface{}{
			"order_id": req.OrderID,
		})
		return
	}

	log.Info("Payment intent created", map[string]interface{}{
		"order_id":         req.OrderID,
		"gateway_order_id": intent.GatewayOrderID,
	})
	c.JSON(http.StatusCreated, intent)
}

// VerifyPayment confirms a checkout callback signed by the gateway
// POST /api/v1/payments/verify
func (ctrl *PaymentController) VerifyPayment(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req VerifyPaymentRequest
	if !bindJSON(c, log, &req) {
		return
	}

	payment, err := ctrl.paymentService.VerifyPayment(c.Request.Context(), service.VerifyPaymentInput{
		OrderID:          req.OrderID,
		UserID:           middleware.OptionalUserID(c),
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
	})
	if err != nil {
		respondServiceError(c, log, "Payment verification failed", err, map[string]interface{}{
			"order_id":         req.OrderID,
			"gateway_order_id": req.RazorpayOrderID,
		})
		return
	}

	log.Info("Payment verified", map[string]interface{}{
		"order_id":   req.OrderID,
		"payment_id": payment.ID,
	})
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// Webhook receives asynchronous gateway notifications. Non-2xx answers make
// the gateway redeliver, so only signature and payload errors are final.
// POST /api/v1/payments/webhook
func (ctrl *PaymentController) Webhook(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		log.Warn("Failed to read webhook body", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "unreadable body")
		return
	}

	eventID := c.GetHeader(webhookEventIDHeader)
	result, err := ctrl.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader), eventID)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSignature) || errors.Is(err, apperrors.ErrValidation) {
			respondServiceError(c, log, "Webhook rejected", err, map[string]interface{}{
				"event_id": eventID,
			})
			return
		}
		log.Error("Webhook processing failed", err, map[string]interface{}{
			"event_id": eventID,
		})
		apperrors.InternalError(c, "")
		return
	}

	log.Info("Webhook processed", map[string]interface{}{
		"event_id": eventID,
		"event":    result.Event,
		"applied":  result.Applied,
	})
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"event":   result.Event,
		"applied": result.Applied,
	})
}
