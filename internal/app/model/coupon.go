package model

import (
	"time"

	"gorm.io/datatypes"
)

type DiscountType string

const (
	DiscountPercentage   DiscountType = "PERCENTAGE"
	DiscountFixedAmount  DiscountType = "FIXED_AMOUNT"
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixedAmount, DiscountFreeShipping:
		return true
	}
	return false
}

type Coupon struct {
	ID             uint                      `gorm:"primarykey" json:"id"`
	Code           string                    `gorm:"type:varchar(40);uniqueIndex;not null" json:"code"` // upper-cased
	Description    string                    `json:"description,omitempty"`
	DiscountType   DiscountType              `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountValue  float64                   `gorm:"not null" json:"discount_value"`
	MinOrderValue  float64                   `gorm:"not null;default:0" json:"min_order_value"`
	MaxDiscount    *float64                  `json:"max_discount,omitempty"` // PERCENTAGE only
	UsageLimit     *int                      `json:"usage_limit,omitempty"`
	PerUserLimit   *int                      `json:"per_user_limit,omitempty"`
	UsageCount     int                       `gorm:"not null;default:0" json:"usage_count"`
	StartsAt       *time.Time                `json:"starts_at,omitempty"`
	ExpiresAt      *time.Time                `json:"expires_at,omitempty"`
	IsActive       bool                      `gorm:"not null" json:"is_active"`
	ProductIDs     datatypes.JSONSlice[uint] `json:"product_ids,omitempty"`
	CategoryIDs    datatypes.JSONSlice[uint] `json:"category_ids,omitempty"`
	IssuedToUserID *uint                     `gorm:"index" json:"issued_to_user_id,omitempty"`
	SourceReturnID *uint                     `gorm:"index" json:"source_return_id,omitempty"`
	SourceOrderID  *uint                     `gorm:"index" json:"source_order_id,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupons"
}

// HasApplicability reports whether the coupon is restricted to specific products or categories.
func (c Coupon) HasApplicability() bool {
	return len(c.ProductIDs) > 0 || len(c.CategoryIDs) > 0
}
