package repository

import (
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	WithTx(tx *gorm.DB) ProductRepository
	Create(product *model.Product) error
	UpsertBySKU(product *model.Product) error
	FindByID(id uint) (*model.Product, error)
	FindByIDs(ids []uint) ([]model.Product, error)
	// DecrementStock removes qty units only if at least qty are available.
	// It reports false when the product lacks stock.
	DecrementStock(id uint, qty int) (bool, error)
	IncrementStock(id uint, qty int) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepository{db: tx}
}

func (r *productRepository) Create(product *model.Product) error {
	logger.Debug("Creating product in database", map[string]interface{}{
		"sku":   product.SKU,
		"stock": product.Stock,
	})

	if err := r.db.Create(product).Error; err != nil {
		logger.Error("Failed to create product in database", err, map[string]interface{}{
			"sku": product.SKU,
		})
		return err
	}
	return nil
}

// UpsertBySKU inserts the product or refreshes name, price, stock and image of the existing SKU.
func (r *productRepository) UpsertBySKU(product *model.Product) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "price", "stock", "image_url", "category_id", "updated_at"}),
	}).Create(product).Error
	if err != nil {
		logger.Error("Failed to upsert product", err, map[string]interface{}{
			"sku": product.SKU,
		})
	}
	return err
}

func (r *productRepository) FindByID(id uint) (*model.Product, error) {
	var product model.Product
	if err := r.db.First(&product, id).Error; err != nil {
		logger.Debug("Product lookup failed", map[string]interface{}{
			"product_id": id,
			"error":      err.Error(),
		})
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindByIDs(ids []uint) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.Where("id IN ?", ids).Find(&products).Error; err != nil {
		logger.Error("Failed to find products by IDs", err, map[string]interface{}{
			"count": len(ids),
		})
		return nil, err
	}
	return products, nil
}

func (r *productRepository) DecrementStock(id uint, qty int) (bool, error) {
	logger.Debug("Reserving stock", map[string]interface{}{
		"product_id": id,
		"quantity":   qty,
	})

	result := r.db.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if result.Error != nil {
		logger.Error("Failed to decrement stock", result.Error, map[string]interface{}{
			"product_id": id,
			"quantity":   qty,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *productRepository) IncrementStock(id uint, qty int) error {
	logger.Debug("Restoring stock", map[string]interface{}{
		"product_id": id,
		"quantity":   qty,
	})

	result := r.db.Model(&model.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", qty))
	if result.Error != nil {
		logger.Error("Failed to increment stock", result.Error, map[string]interface{}{
			"product_id": id,
			"quantity":   qty,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
