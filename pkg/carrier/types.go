package carrier

import "time"

type PickupType string

const (
	PickupForward PickupType = "forward"
	PickupReverse PickupType = "reverse"
)

// Status is the carrier lifecycle normalised to the states the store tracks.
type Status string

const (
	StatusProcessing     Status = "PROCESSING"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusFailed         Status = "FAILED"
	StatusReturned       Status = "RETURNED"
)

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"add"`
	Line2      string `json:"add2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"pin"`
	Country    string `json:"country"`
}

type pickupRequest struct {
	Type           PickupType `json:"type"`
	PickupLocation string     `json:"pickup_location"`
	Address        Address    `json:"address"`
	Reference      string     `json:"reference,omitempty"`
}

// PickupResult reports a booked pickup and the waybill assigned to it.
type PickupResult struct {
	Success bool   `json:"success"`
	Waybill string `json:"waybill"`
	Error   string `json:"error,omitempty"`
}

type ShipmentItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// ShipmentRequest is a forward shipment for one order.
type ShipmentRequest struct {
	OrderNumber    string         `json:"order"`
	PickupLocation string         `json:"pickup_location"`
	Consignee      Address        `json:"consignee"`
	Items          []ShipmentItem `json:"items"`
	DeclaredValue  float64        `json:"total_amount"`
	Method         string         `json:"shipping_mode"`
}

type ShipmentResult struct {
	Success        bool   `json:"success"`
	TrackingNumber string `json:"waybill"`
	Error          string `json:"error,omitempty"`
}

type TrackResult struct {
	Success   bool      `json:"success"`
	RawStatus string    `json:"status"`
	Status    Status    `json:"-"`
	UpdatedAt time.Time `json:"status_date_time"`
	Error     string    `json:"error,omitempty"`
}

// ErrorResponse is returned by the carrier on non-2xx answers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
