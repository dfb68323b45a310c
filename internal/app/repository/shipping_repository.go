package repository

import (
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ShippingRepository interface {
	WithTx(tx *gorm.DB) ShippingRepository
	// CreateIfAbsent inserts the shipment unless the order already has one.
	// It reports whether a row was inserted.
	CreateIfAbsent(shipping *model.Shipping) (bool, error)
	FindByOrderID(orderID uint) (*model.Shipping, error)
	FindActive(limit int) ([]model.Shipping, error)
	// Advance moves the shipment to a new status only while it still holds
	// the status the caller observed.
	Advance(id uint, observed model.ShippingStatus, fields map[string]interface{}) (bool, error)
	Touch(id uint, fields map[string]interface{}) error
}

type shippingRepository struct {
	db *gorm.DB
}

func NewShippingRepository(db *gorm.DB) ShippingRepository {
	return &shippingRepository{db: db}
}

func (r *shippingRepository) WithTx(tx *gorm.DB) ShippingRepository {
	return &shippingRepository{db: tx}
}

func (r *shippingRepository) CreateIfAbsent(shipping *model.Shipping) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(shipping)
	if result.Error != nil {
		logger.Error("Failed to create shipping", result.Error, map[string]interface{}{
			"order_id": shipping.OrderID,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *shippingRepository) FindByOrderID(orderID uint) (*model.Shipping, error) {
	var shipping model.Shipping
	if err := r.db.Where("order_id = ?", orderID).First(&shipping).Error; err != nil {
		return nil, err
	}
	return &shipping, nil
}

// FindActive returns in-flight shipments, least recently checked first.
func (r *shippingRepository) FindActive(limit int) ([]model.Shipping, error) {
	var shipments []model.Shipping
	err := r.db.Where("status IN ?", model.ActiveShippingStatuses()).
		Where("tracking_number <> ''").
		Order("last_checked_at IS NOT NULL, last_checked_at ASC").
		Limit(limit).
		Find(&shipments).Error
	if err != nil {
		logger.Error("Failed to find active shipments", err)
		return nil, err
	}
	return shipments, nil
}

func (r *shippingRepository) Advance(id uint, observed model.ShippingStatus, fields map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.Shipping{}).
		Where("id = ? AND status = ?", id, observed).
		Updates(fields)
	if result.Error != nil {
		logger.Error("Failed to advance shipping", result.Error, map[string]interface{}{
			"shipping_id": id,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *shippingRepository) Touch(id uint, fields map[string]interface{}) error {
	return r.db.Model(&model.Shipping{}).Where("id = ?", id).Updates(fields).Error
}
