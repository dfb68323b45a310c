package repository

import (
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	Create(payment *model.Payment) error
	FindByTransactionID(transactionID string) (*model.Payment, error)
	FindByGatewayPaymentID(gatewayPaymentID string) (*model.Payment, error)
	FindByOrderID(orderID uint) ([]model.Payment, error)
	FindCompletedByOrderID(orderID uint) (*model.Payment, error)
	// MarkCompleted, MarkFailed and MarkRefunded apply only from the expected
	// prior status and report whether the row changed.
	MarkCompleted(id uint, gatewayPaymentID string, paidAt time.Time, payload []byte) (bool, error)
	MarkFailed(id uint, gatewayPaymentID, reason string, payload []byte) (bool, error)
	MarkRefunded(id uint, refundID string, payload []byte) (bool, error)
	SetRefundID(id uint, refundID string) error
	AppendEvent(paymentID uint, event string, payload []byte) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	return &paymentRepository{db: tx}
}

func (r *paymentRepository) Create(payment *model.Payment) error {
	logger.Debug("Creating payment in database", map[string]interface{}{
		"order_id":       payment.OrderID,
		"transaction_id": payment.TransactionID,
		"amount":         payment.Amount,
	})

	if err := r.db.Create(payment).Error; err != nil {
		logger.Error("Failed to create payment in database", err, map[string]interface{}{
			"order_id":       payment.OrderID,
			"transaction_id": payment.TransactionID,
		})
		return err
	}
	return nil
}

func (r *paymentRepository) FindByTransactionID(transactionID string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.Where("transaction_id = ?", transactionID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByGatewayPaymentID(gatewayPaymentID string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.Where("gateway_payment_id = ?", gatewayPaymentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByOrderID(orderID uint) ([]model.Payment, error) {
	var payments []model.Payment
	if err := r.db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&payments).Error; err != nil {
		logger.Error("Failed to find payments by order", err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) FindCompletedByOrderID(orderID uint) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("order_id = ? AND status = ?", orderID, model.PaymentStatusCompleted).
		Order("paid_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) transition(id uint, from model.PaymentStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		logger.Error("Failed to update payment status", result.Error, map[string]interface{}{
			"payment_id": id,
			"to":         updates["status"],
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) MarkCompleted(id uint, gatewayPaymentID string, paidAt time.Time, payload []byte) (bool, error) {
	return r.transition(id, model.PaymentStatusPending, map[string]interface{}{
		"status":             model.PaymentStatusCompleted,
		"gateway_payment_id": gatewayPaymentID,
		"paid_at":            paidAt,
		"gateway_response":   datatypes.JSON(payload),
	})
}

func (r *paymentRepository) MarkFailed(id uint, gatewayPaymentID, reason string, payload []byte) (bool, error) {
	return r.transition(id, model.PaymentStatusPending, map[string]interface{}{
		"status":             model.PaymentStatusFailed,
		"gateway_payment_id": gatewayPaymentID,
		"failure_reason":     reason,
		"gateway_response":   datatypes.JSON(payload),
	})
}

func (r *paymentRepository) MarkRefunded(id uint, refundID string, payload []byte) (bool, error) {
	return r.transition(id, model.PaymentStatusCompleted, map[string]interface{}{
		"status":           model.PaymentStatusRefunded,
		"refund_id":        refundID,
		"gateway_response": datatypes.JSON(payload),
	})
}

func (r *paymentRepository) SetRefundID(id uint, refundID string) error {
	return r.db.Model(&model.Payment{}).Where("id = ?", id).Update("refund_id", refundID).Error
}

func (r *paymentRepository) AppendEvent(paymentID uint, event string, payload []byte) error {
	entry := &model.PaymentEvent{
		PaymentID: paymentID,
		Event:     event,
		Payload:   datatypes.JSON(payload),
	}
	if err := r.db.Create(entry).Error; err != nil {
		logger.Error("Failed to append payment event", err, map[string]interface{}{
			"payment_id": paymentID,
			"event":      event,
		})
		return err
	}
	return nil
}
