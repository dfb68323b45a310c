package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID               uint           `gorm:"primarykey" json:"id"`
	OrderID          uint           `gorm:"not null;index" json:"order_id"`
	Amount           float64        `gorm:"not null" json:"amount"`
	Currency         string         `gorm:"type:varchar(3);not null" json:"currency"`
	Method           string         `gorm:"type:varchar(30)" json:"method,omitempty"`
	Gateway          string         `gorm:"type:varchar(30);not null" json:"gateway"`
	TransactionID    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"` // gateway order id
	GatewayPaymentID string         `gorm:"type:varchar(64);index" json:"gateway_payment_id,omitempty"`
	Status           PaymentStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	FailureReason    string         `gorm:"type:text" json:"failure_reason,omitempty"`
	RefundID         string         `gorm:"type:varchar(64)" json:"refund_id,omitempty"`
	GatewayResponse  datatypes.JSON `json:"-"` // latest payload; history lives in payment_events
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Events []PaymentEvent `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// PaymentEvent is an append-only record of every gateway payload seen for a payment.
type PaymentEvent struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	PaymentID uint           `gorm:"not null;index" json:"payment_id"`
	Event     string         `gorm:"type:varchar(50);not null" json:"event"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
