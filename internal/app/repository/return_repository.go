package repository

import (
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

type ReturnFilter struct {
	Status model.ReturnStatus
	Limit  int
	Offset int
}

type ReturnRepository interface {
	WithTx(tx *gorm.DB) ReturnRepository
	Create(req *model.ReturnRequest) error
	AppendLog(entry *model.ReturnLog) error
	FindByID(id uint) (*model.ReturnRequest, error)
	FindActiveByOrderID(orderID uint) (*model.ReturnRequest, error)
	// CountPaidOut counts approved or completed returns of the order that refund or credit the customer.
	CountPaidOut(orderID uint) (int64, error)
	FindByUserID(userID uint) ([]model.ReturnRequest, error)
	List(filter ReturnFilter) ([]model.ReturnRequest, int64, error)
	// TransitionStatus applies `to` only while the request is still in `from`.
	TransitionStatus(id uint, from, to model.ReturnStatus, fields map[string]interface{}) (bool, error)
	UpdateFields(id uint, fields map[string]interface{}) error
}

type returnRepository struct {
	db *gorm.DB
}

func NewReturnRepository(db *gorm.DB) ReturnRepository {
	return &returnRepository{db: db}
}

func (r *returnRepository) WithTx(tx *gorm.DB) ReturnRepository {
	return &returnRepository{db: tx}
}

func (r *returnRepository) Create(req *model.ReturnRequest) error {
	logger.Debug("Creating return request in database", map[string]interface{}{
		"order_id":   req.OrderID,
		"resolution": req.ResolutionType,
	})

	if err := r.db.Create(req).Error; err != nil {
		logger.Error("Failed to create return request", err, map[string]interface{}{
			"order_id": req.OrderID,
		})
		return err
	}
	return nil
}

func (r *returnRepository) AppendLog(entry *model.ReturnLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		logger.Error("Failed to append return log", err, map[string]interface{}{
			"return_id": entry.ReturnRequestID,
			"status":    entry.Status,
		})
		return err
	}
	return nil
}

func (r *returnRepository) FindByID(id uint) (*model.ReturnRequest, error) {
	var req model.ReturnRequest
	err := r.db.Preload("Order").Preload("Order.User").Preload("Order.OrderItems").
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *returnRepository) FindActiveByOrderID(orderID uint) (*model.ReturnRequest, error) {
	var req model.ReturnRequest
	err := r.db.Where("order_id = ? AND status IN ?", orderID,
		[]model.ReturnStatus{model.ReturnStatusPending, model.ReturnStatusApproved}).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *returnRepository) CountPaidOut(orderID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.ReturnRequest{}).
		Where("order_id = ? AND status IN ? AND resolution_type IN ?", orderID,
			[]model.ReturnStatus{model.ReturnStatusApproved, model.ReturnStatusCompleted},
			[]model.ResolutionType{model.ResolutionRefund, model.ResolutionStoreCredit}).
		Count(&count).Error
	if err != nil {
		logger.Error("Failed to count settled returns", err, map[string]interface{}{
			"order_id": orderID,
		})
		return 0, err
	}
	return count, nil
}

func (r *returnRepository) FindByUserID(userID uint) ([]model.ReturnRequest, error) {
	var reqs []model.ReturnRequest
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&reqs).Error; err != nil {
		logger.Error("Failed to find return requests by user", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}
	return reqs, nil
}

func (r *returnRepository) List(filter ReturnFilter) ([]model.ReturnRequest, int64, error) {
	query := r.db.Model(&model.ReturnRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	var reqs []model.ReturnRequest
	if err := query.Preload("Order").
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&reqs).Error; err != nil {
		logger.Error("Failed to list return requests", err)
		return nil, 0, err
	}
	return reqs, total, nil
}

func (r *returnRepository) TransitionStatus(id uint, from, to model.ReturnStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.Model(&model.ReturnRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		logger.Error("Failed to transition return request", result.Error, map[string]interface{}{
			"return_id": id,
			"to":        to,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *returnRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&model.ReturnRequest{}).Where("id = ?", id).Updates(fields).Error
}
