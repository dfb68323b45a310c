package repository

import (
	"strings"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

type CouponRepository interface {
	WithTx(tx *gorm.DB) CouponRepository
	Create(coupon *model.Coupon) error
	FindByID(id uint) (*model.Coupon, error)
	FindByCode(code string) (*model.Coupon, error)
	FindStoreCreditByOrderID(orderID uint) (*model.Coupon, error)
	List(activeOnly bool, limit, offset int) ([]model.Coupon, int64, error)
	Deactivate(id uint) error
	// IncrementUsage bumps usage_count while it is still below usage_limit.
	// It reports false when the limit was already reached.
	IncrementUsage(id uint) (bool, error)
}

type couponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) WithTx(tx *gorm.DB) CouponRepository {
	return &couponRepository{db: tx}
}

func (r *couponRepository) Create(coupon *model.Coupon) error {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	logger.Debug("Creating coupon in database", map[string]interface{}{
		"code": coupon.Code,
		"type": coupon.DiscountType,
	})

	if err := r.db.Create(coupon).Error; err != nil {
		logger.Debug("Coupon insert failed", map[string]interface{}{
			"code":  coupon.Code,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (r *couponRepository) FindByID(id uint) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.First(&coupon, id).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) FindByCode(code string) (*model.Coupon, error) {
	var coupon model.Coupon
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if err := r.db.Where("code = ?", normalized).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) FindStoreCreditByOrderID(orderID uint) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.Where("source_order_id = ?", orderID).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) List(activeOnly bool, limit, offset int) ([]model.Coupon, int64, error) {
	query := r.db.Model(&model.Coupon{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}

	var coupons []model.Coupon
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&coupons).Error; err != nil {
		logger.Error("Failed to list coupons", err)
		return nil, 0, err
	}
	return coupons, total, nil
}

func (r *couponRepository) Deactivate(id uint) error {
	result := r.db.Model(&model.Coupon{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *couponRepository) IncrementUsage(id uint) (bool, error) {
	result := r.db.Model(&model.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", id).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		logger.Error("Failed to increment coupon usage", result.Error, map[string]interface{}{
			"coupon_id": id,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
