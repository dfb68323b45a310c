package service

import (
	"context"

	"github.com/ikkim/storefront-backend/pkg/carrier"
)

// PaymentGateway is the subset of the payment gateway the lifecycle engines use.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error)
	Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	Currency() string
	KeyID() string
}

// ShipmentCarrier books forward shipments and reverse pickups and reports tracking.
type ShipmentCarrier interface {
	Name() string
	CreatePickup(ctx context.Context, addr carrier.Address, typ carrier.PickupType, reference string) (*carrier.PickupResult, error)
	CreateShipment(ctx context.Context, req carrier.ShipmentRequest) (*carrier.ShipmentResult, error)
	TrackShipment(ctx context.Context, trackingNumber string) (*carrier.TrackResult, error)
}
