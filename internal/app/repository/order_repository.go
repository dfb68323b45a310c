package repository

import (
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

type OrderFilter struct {
	Status model.OrderStatus
	UserID *uint
	Limit  int
	Offset int
}

type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	Create(order *model.Order) error
	FindByID(id uint) (*model.Order, error)
	FindByNumber(number string) (*model.Order, error)
	FindByUserID(userID uint) ([]model.Order, error)
	List(filter OrderFilter) ([]model.Order, int64, error)
	// TransitionStatus moves the order to `to` only while its status is one of
	// `from`. It reports false when the order was not in an eligible state.
	TransitionStatus(id uint, from []model.OrderStatus, to model.OrderStatus, fields map[string]interface{}) (bool, error)
	CountCouponUses(userID, couponID uint) (int64, error)
	FindConfirmedWithoutShipment(limit int) ([]model.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) preloadOrder() *gorm.DB {
	return r.db.Preload("OrderItems").Preload("User").Preload("Shipping")
}

func (r *orderRepository) Create(order *model.Order) error {
	logger.Debug("Creating order in database", map[string]interface{}{
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total_amount": order.TotalAmount,
		"item_count":   len(order.OrderItems),
	})

	if err := r.db.Create(order).Error; err != nil {
		logger.Error("Failed to create order in database", err, map[string]interface{}{
			"order_number": order.OrderNumber,
			"user_id":      order.UserID,
		})
		return err
	}

	logger.Debug("Order created in database", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})
	return nil
}

func (r *orderRepository) FindByID(id uint) (*model.Order, error) {
	var order model.Order
	if err := r.preloadOrder().First(&order, id).Error; err != nil {
		logger.Debug("Order lookup by ID failed", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByNumber(number string) (*model.Order, error) {
	var order model.Order
	if err := r.preloadOrder().Where("order_number = ?", number).First(&order).Error; err != nil {
		logger.Debug("Order lookup by number failed", map[string]interface{}{
			"order_number": number,
			"error":        err.Error(),
		})
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByUserID(userID uint) ([]model.Order, error) {
	var orders []model.Order
	if err := r.preloadOrder().Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		logger.Error("Failed to find orders by user ID in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	logger.Debug("Orders found by user ID in database", map[string]interface{}{
		"user_id": userID,
		"count":   len(orders),
	})
	return orders, nil
}

func (r *orderRepository) List(filter OrderFilter) ([]model.Order, int64, error) {
	query := r.db.Model(&model.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.Error("Failed to count orders", err)
		return nil, 0, err
	}

	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	var orders []model.Order
	if err := query.Preload("OrderItems").
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&orders).Error; err != nil {
		logger.Error("Failed to list orders", err, map[string]interface{}{
			"status": filter.Status,
		})
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) TransitionStatus(id uint, from []model.OrderStatus, to model.OrderStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.Model(&model.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		logger.Error("Failed to transition order status", result.Error, map[string]interface{}{
			"order_id": id,
			"to":       to,
		})
		return false, result.Error
	}

	logger.Debug("Order status transition attempted", map[string]interface{}{
		"order_id": id,
		"to":       to,
		"applied":  result.RowsAffected == 1,
	})
	return result.RowsAffected == 1, nil
}

// CountCouponUses counts the user's orders that consumed the coupon. Orders still
// awaiting payment or cancelled before payment do not count.
func (r *orderRepository) CountCouponUses(userID, couponID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Order{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Where("status NOT IN ?", []model.OrderStatus{model.OrderStatusPending, model.OrderStatusCancelled}).
		Count(&count).Error
	if err != nil {
		logger.Error("Failed to count coupon uses", err, map[string]interface{}{
			"user_id":   userID,
			"coupon_id": couponID,
		})
		return 0, err
	}
	return count, nil
}

func (r *orderRepository) FindConfirmedWithoutShipment(limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.Preload("OrderItems").
		Where("status = ?", model.OrderStatusConfirmed).
		Where("NOT EXISTS (SELECT 1 FROM shippings s WHERE s.order_id = orders.id)").
		Order("paid_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		logger.Error("Failed to find confirmed orders without shipment", err)
		return nil, err
	}
	return orders, nil
}
