package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/events"
	"github.com/ikkim/storefront-backend/pkg/carrier"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

const carrierTimeout = 20 * time.Second

// TrackingSummary reports one pass of the tracking poller.
type TrackingSummary struct {
	Checked  int `json:"checked"`
	Advanced int `json:"advanced"`
	Failed   int `json:"failed"`
	Created  int `json:"created"`
}

type ShipmentService interface {
	CreateShipmentForOrder(ctx context.Context, orderID uint) (*model.Shipping, error)
	HandleOrderConfirmed(ctx context.Context, evt events.OrderConfirmed) error
	PollTracking(ctx context.Context, batchSize int) (*TrackingSummary, error)
	GetShipment(orderID uint) (*model.Shipping, error)
}

type shipmentService struct {
	db           *gorm.DB
	shippingRepo repository.ShippingRepository
	orderRepo    repository.OrderRepository
	carrier      ShipmentCarrier
	now          func() time.Time
}

func NewShipmentService(
	db *gorm.DB,
	shippingRepo repository.ShippingRepository,
	orderRepo repository.OrderRepository,
	shipmentCarrier ShipmentCarrier,
) ShipmentService {
	return &shipmentService{
		db:           db,
		shippingRepo: shippingRepo,
		orderRepo:    orderRepo,
		carrier:      shipmentCarrier,
		now:          time.Now,
	}
}

func toCarrierAddress(addr model.AddressSnapshot) carrier.Address {
	return carrier.Address{
		Name:       addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (s *shipmentService) GetShipment(orderID uint) (*model.Shipping, error) {
	shipping, err := s.shippingRepo.FindByOrderID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: shipment for order %d", ErrOrderNotFound, orderID)
		}
		return nil, err
	}
	return shipping, nil
}

// CreateShipmentForOrder books a forward shipment for a CONFIRMED order.
// Calling it again for an order that already ships returns the existing row.
func (s *shipmentService) CreateShipmentForOrder(ctx context.Context, orderID uint) (*model.Shipping, error) {
	if existing, err := s.shippingRepo.FindByOrderID(orderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.Status != model.OrderStatusConfirmed {
		return nil, conflictf("order %s is %s; only confirmed orders ship", order.OrderNumber, order.Status)
	}
	if s.carrier == nil {
		return nil, fmt.Errorf("%w: carrier not configured", ErrCarrierFailure)
	}

	items := make([]carrier.ShipmentItem, 0, len(order.OrderItems))
	for _, it := range order.OrderItems {
		items = append(items, carrier.ShipmentItem{
			SKU:      it.ProductSKU,
			Name:     it.ProductName,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, carrierTimeout)
	defer cancel()
	res, err := s.carrier.CreateShipment(callCtx, carrier.ShipmentRequest{
		OrderNumber:   order.OrderNumber,
		Consignee:     toCarrierAddress(order.ShippingAddress.Data()),
		Items:         items,
		DeclaredValue: order.Subtotal,
		Method:        "standard",
	})
	if err != nil {
		logger.Error("Carrier shipment creation failed", err, map[string]interface{}{
			"order_id": order.ID,
			"carrier":  s.carrier.Name(),
		})
		return nil, fmt.Errorf("%w: %v", ErrCarrierFailure, err)
	}

	shipping := &model.Shipping{
		OrderID:        order.ID,
		Carrier:        s.carrier.Name(),
		TrackingNumber: res.TrackingNumber,
		Method:         "standard",
		Cost:           order.ShippingCost,
		Status:         model.ShippingStatusProcessing,
	}

	var inserted bool
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.shippingRepo.WithTx(tx).CreateIfAbsent(shipping)
		if err != nil || !inserted {
			return err
		}
		_, err = s.orderRepo.WithTx(tx).TransitionStatus(order.ID,
			[]model.OrderStatus{model.OrderStatusConfirmed}, model.OrderStatusProcessing, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		logger.Warn("Shipment already created concurrently", map[string]interface{}{
			"order_id":        order.ID,
			"tracking_number": res.TrackingNumber,
		})
		return s.shippingRepo.FindByOrderID(order.ID)
	}

	logger.Info("Shipment created", map[string]interface{}{
		"order_id":        order.ID,
		"tracking_number": shipping.TrackingNumber,
		"carrier":         shipping.Carrier,
	})
	return shipping, nil
}

// HandleOrderConfirmed is the order.confirmed consumer.
func (s *shipmentService) HandleOrderConfirmed(ctx context.Context, evt events.OrderConfirmed) error {
	_, err := s.CreateShipmentForOrder(ctx, evt.OrderID)
	return err
}

// PollTracking refreshes active shipments from the carrier and moves their
// orders forward, then retries confirmed orders that never got a shipment.
func (s *shipmentService) PollTracking(ctx context.Context, batchSize int) (*TrackingSummary, error) {
	summary := &TrackingSummary{}
	if s.carrier == nil {
		return summary, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	shipments, err := s.shippingRepo.FindActive(batchSize)
	if err != nil {
		return nil, err
	}

	for i := range shipments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		advanced, err := s.refresh(ctx, &shipments[i])
		if err != nil {
			summary.Failed++
			continue
		}
		if advanced {
			summary.Advanced++
		}
	}

	pending, err := s.orderRepo.FindConfirmedWithoutShipment(batchSize)
	if err != nil {
		return summary, err
	}
	for _, order := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.CreateShipmentForOrder(ctx, order.ID); err != nil {
			summary.Failed++
			continue
		}
		summary.Created++
	}

	logger.Info("Tracking poll finished", map[string]interface{}{
		"checked":  summary.Checked,
		"advanced": summary.Advanced,
		"created":  summary.Created,
		"failed":   summary.Failed,
	})
	return summary, nil
}

func (s *shipmentService) refresh(ctx context.Context, shipping *model.Shipping) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, carrierTimeout)
	defer cancel()

	now := s.now()
	res, err := s.carrier.TrackShipment(callCtx, shipping.TrackingNumber)
	if touchErr := s.shippingRepo.Touch(shipping.ID, map[string]interface{}{"last_checked_at": now}); touchErr != nil {
		logger.Error("Failed to stamp shipment check", touchErr, map[string]interface{}{
			"shipping_id": shipping.ID,
		})
	}
	if err != nil {
		logger.Warn("Tracking lookup failed", map[string]interface{}{
			"shipping_id":     shipping.ID,
			"tracking_number": shipping.TrackingNumber,
			"error":           err.Error(),
		})
		return false, err
	}

	next := model.ShippingStatus(res.Status)
	if !shipping.Status.Precedes(next) {
		return false, nil
	}

	fields := map[string]interface{}{}
	if shipping.ShippedAt == nil && next.InMotion() {
		fields["shipped_at"] = now
	}
	if next == model.ShippingStatusDelivered && shipping.DeliveredAt == nil {
		fields["delivered_at"] = now
	}

	var moved bool
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = s.shippingRepo.WithTx(tx).Advance(shipping.ID, shipping.Status, withStatus(fields, next))
		if err != nil || !moved {
			return err
		}

		orders := s.orderRepo.WithTx(tx)
		switch next {
		case model.ShippingStatusInTransit, model.ShippingStatusOutForDelivery:
			_, err = orders.TransitionStatus(shipping.OrderID,
				[]model.OrderStatus{model.OrderStatusConfirmed, model.OrderStatusProcessing},
				model.OrderStatusShipped, nil)
		case model.ShippingStatusDelivered:
			_, err = orders.TransitionStatus(shipping.OrderID,
				model.NonTerminalOrderStatuses(), model.OrderStatusDelivered, nil)
		}
		return err
	})
	if err != nil {
		logger.Error("Failed to advance shipment", err, map[string]interface{}{
			"shipping_id": shipping.ID,
		})
		return false, err
	}

	if moved {
		logger.Info("Shipment advanced", map[string]interface{}{
			"shipping_id": shipping.ID,
			"order_id":    shipping.OrderID,
			"from":        shipping.Status,
			"to":          next,
		})
	}
	return moved, nil
}

func withStatus(fields map[string]interface{}, status model.ShippingStatus) map[string]interface{} {
	fields["status"] = status
	return fields
}
