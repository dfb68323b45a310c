package model

import "time"

type ShippingStatus string

const (
	ShippingStatusProcessing     ShippingStatus = "PROCESSING"
	ShippingStatusInTransit      ShippingStatus = "IN_TRANSIT"
	ShippingStatusOutForDelivery ShippingStatus = "OUT_FOR_DELIVERY"
	ShippingStatusDelivered      ShippingStatus = "DELIVERED"
	ShippingStatusFailed         ShippingStatus = "FAILED"
	ShippingStatusReturned       ShippingStatus = "RETURNED"
)

var shippingRank = map[ShippingStatus]int{
	ShippingStatusProcessing:     0,
	ShippingStatusInTransit:      1,
	ShippingStatusOutForDelivery: 2,
	ShippingStatusDelivered:      3,
	ShippingStatusFailed:         3,
	ShippingStatusReturned:       3,
}

func (s ShippingStatus) IsTerminal() bool {
	return s == ShippingStatusDelivered || s == ShippingStatusFailed || s == ShippingStatusReturned
}

// Precedes reports whether moving from s to next goes forward in the carrier lifecycle.
func (s ShippingStatus) Precedes(next ShippingStatus) bool {
	if s.IsTerminal() {
		return false
	}
	from, ok := shippingRank[s]
	if !ok {
		return false
	}
	to, ok := shippingRank[next]
	return ok && to > from
}

// InMotion reports whether the parcel has left the warehouse. A shipment that
// fails or is returned before pickup never shipped.
func (s ShippingStatus) InMotion() bool {
	return s == ShippingStatusInTransit || s == ShippingStatusOutForDelivery || s == ShippingStatusDelivered
}

// ActiveShippingStatuses are the statuses the tracking poller still follows.
func ActiveShippingStatuses() []ShippingStatus {
	return []ShippingStatus{ShippingStatusProcessing, ShippingStatusInTransit, ShippingStatusOutForDelivery}
}

type Shipping struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	OrderID        uint           `gorm:"not null;uniqueIndex" json:"order_id"` // one shipment per order
	Carrier        string         `gorm:"type:varchar(50);not null" json:"carrier"`
	TrackingNumber string         `gorm:"type:varchar(64);index" json:"tracking_number"`
	Method         string         `gorm:"type:varchar(30)" json:"method"`
	Cost           float64        `gorm:"not null;default:0" json:"cost"`
	Status         ShippingStatus `gorm:"type:varchar(20);not null;default:'PROCESSING';index" json:"status"`
	LastCheckedAt  *time.Time     `json:"last_checked_at,omitempty"`
	ShippedAt      *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Shipping) TableName() string {
	return "shippings"
}
