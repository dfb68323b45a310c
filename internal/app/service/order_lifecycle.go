package service

import (
	"errors"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

// closeOrderTx moves an order from one of `from` into CANCELLED or REFUNDED
// and returns every item's quantity to stock. The conditional transition is
// the guard that keeps the restore to exactly once per order.
func closeOrderTx(tx *gorm.DB, orderRepo repository.OrderRepository, productRepo repository.ProductRepository, orderID uint, from []model.OrderStatus, target model.OrderStatus) error {
	orders := orderRepo.WithTx(tx)

	ok, err := orders.TransitionStatus(orderID, from, target, nil)
	if err != nil {
		return err
	}
	if !ok {
		current, err := orders.FindByID(orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		return conflictf("order %s is already %s", current.OrderNumber, current.Status)
	}

	order, err := orders.FindByID(orderID)
	if err != nil {
		return err
	}
	products := productRepo.WithTx(tx)
	for _, item := range order.OrderItems {
		if err := products.IncrementStock(item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn("Product removed before stock restore", map[string]interface{}{
					"order_id":   orderID,
					"product_id": item.ProductID,
				})
				continue
			}
			return err
		}
	}
	return nil
}

// confirmOrderTx moves a PENDING order to CONFIRMED, stamps paid_at and
// counts the coupon use. It reports false when the order was not PENDING.
func confirmOrderTx(tx *gorm.DB, orderRepo repository.OrderRepository, couponRepo repository.CouponRepository, orderID uint, paidAt time.Time) (bool, error) {
	orders := orderRepo.WithTx(tx)

	ok, err := orders.TransitionStatus(orderID,
		[]model.OrderStatus{model.OrderStatusPending},
		model.OrderStatusConfirmed,
		map[string]interface{}{"paid_at": paidAt})
	if err != nil || !ok {
		return false, err
	}

	order, err := orders.FindByID(orderID)
	if err != nil {
		return false, err
	}
	if order.CouponID != nil {
		counted, err := couponRepo.WithTx(tx).IncrementUsage(*order.CouponID)
		if err != nil {
			return false, err
		}
		if !counted {
			logger.Warn("Coupon usage limit exceeded at confirmation", map[string]interface{}{
				"order_id":  orderID,
				"coupon_id": *order.CouponID,
			})
		}
	}
	return true, nil
}
