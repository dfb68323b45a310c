package model

import (
	"time"

	"gorm.io/datatypes"
)

type ReturnStatus string
type ResolutionType string

const (
	ReturnStatusPending   ReturnStatus = "PENDING"
	ReturnStatusApproved  ReturnStatus = "APPROVED"
	ReturnStatusRejected  ReturnStatus = "REJECTED"
	ReturnStatusCompleted ReturnStatus = "COMPLETED"

	ResolutionRefund      ResolutionType = "REFUND"
	ResolutionExchange    ResolutionType = "EXCHANGE"
	ResolutionStoreCredit ResolutionType = "STORE_CREDIT"

	// PickupPendingWaybill marks an approved return whose reverse pickup could not be booked.
	PickupPendingWaybill = "PICKUP_PENDING"
)

func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionRefund, ResolutionExchange, ResolutionStoreCredit:
		return true
	}
	return false
}

// PaysOut reports whether the resolution hands money or credit back to the customer.
func (r ResolutionType) PaysOut() bool {
	return r == ResolutionRefund || r == ResolutionStoreCredit
}

func (s ReturnStatus) IsTerminal() bool {
	return s == ReturnStatusRejected || s == ReturnStatusCompleted
}

type ReturnRequest struct {
	ID                  uint                        `gorm:"primarykey" json:"id"`
	OrderID             uint                        `gorm:"not null;index" json:"order_id"`
	UserID              *uint                       `gorm:"index" json:"user_id,omitempty"`
	ContactEmail        string                      `gorm:"type:varchar(255)" json:"contact_email,omitempty"`
	ContactPhone        string                      `gorm:"type:varchar(20)" json:"contact_phone,omitempty"`
	Reason              string                      `gorm:"type:varchar(100);not null" json:"reason"`
	Details             string                      `gorm:"type:text" json:"details,omitempty"`
	Photos              datatypes.JSONSlice[string] `json:"photos"`
	ResolutionType      ResolutionType              `gorm:"type:varchar(20);not null" json:"resolution_type"`
	Status              ReturnStatus                `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RejectionReason     string                      `gorm:"type:text" json:"rejection_reason,omitempty"`
	PickupWaybill       string                      `gorm:"type:varchar(64)" json:"pickup_waybill,omitempty"`
	RefundID            string                      `gorm:"type:varchar(64)" json:"refund_id,omitempty"`
	ExchangeOrderNumber string                      `gorm:"type:varchar(32)" json:"exchange_order_number,omitempty"`
	StoreCreditCode     string                      `gorm:"type:varchar(40)" json:"store_credit_code,omitempty"`
	ReviewedBy          *uint                       `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time                  `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`

	Order *Order      `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Logs  []ReturnLog `gorm:"foreignKey:ReturnRequestID" json:"logs,omitempty"`
}

func (ReturnRequest) TableName() string {
	return "return_requests"
}

// ReturnLog is the append-only audit trail of a return request.
type ReturnLog struct {
	ID              uint         `gorm:"primarykey" json:"id"`
	ReturnRequestID uint         `gorm:"not null;index" json:"return_request_id"`
	Status          ReturnStatus `gorm:"type:varchar(20);not null" json:"status"`
	ActorID         *uint        `json:"actor_id,omitempty"` // nil for system entries
	Note            string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (ReturnLog) TableName() string {
	return "return_logs"
}
