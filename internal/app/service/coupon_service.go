package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	apperrors "github.com/ikkim/storefront-backend/internal/errors"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/ikkim/storefront-backend/pkg/util"
	"gorm.io/gorm"
)

// CouponRejection is the precise reason a coupon cannot be applied.
type CouponRejection string

const (
	CouponCodeNotFound        CouponRejection = "CodeNotFound"
	CouponInactive            CouponRejection = "Inactive"
	CouponNotYetActive        CouponRejection = "NotYetActive"
	CouponExpired             CouponRejection = "Expired"
	CouponBelowMinimum        CouponRejection = "BelowMinimum"
	CouponGlobalLimitReached  CouponRejection = "GlobalLimitReached"
	CouponPerUserLimitReached CouponRejection = "PerUserLimitReached"
	CouponNotApplicable       CouponRejection = "NotApplicable"
)

// CouponRejectedError is a validation error carrying the rejection reason.
type CouponRejectedError struct {
	Code CouponRejection
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Code)
}

func (e *CouponRejectedError) Reason() string {
	return string(e.Code)
}

func (e *CouponRejectedError) Unwrap() error {
	return apperrors.ErrValidation
}

// CartLine is one cart entry as seen by the coupon engine.
type CartLine struct {
	ProductID  uint    `json:"product_id"`
	CategoryID *uint   `json:"category_id,omitempty"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

// CouponQuote is the verdict of ValidateAndPrice.
type CouponQuote struct {
	Valid          bool            `json:"valid"`
	Reason         CouponRejection `json:"reason,omitempty"`
	DiscountAmount float64         `json:"discount_amount"`
	FreeShipping   bool            `json:"free_shipping"`
	Coupon         *model.Coupon   `json:"-"`
}

type CreateCouponInput struct {
	Code          string             `json:"code" binding:"required,min=3,max=40"`
	Description   string             `json:"description"`
	DiscountType  model.DiscountType `json:"discount_type" binding:"required"`
	DiscountValue float64            `json:"discount_value"`
	MinOrderValue float64            `json:"min_order_value"`
	MaxDiscount   *float64           `json:"max_discount"`
	UsageLimit    *int               `json:"usage_limit"`
	PerUserLimit  *int               `json:"per_user_limit"`
	StartsAt      *time.Time         `json:"starts_at"`
	ExpiresAt     *time.Time         `json:"expires_at"`
	ProductIDs    []uint             `json:"product_ids"`
	CategoryIDs   []uint             `json:"category_ids"`
}

// StoreCreditInput describes a single-use credit minted for an approved return.
type StoreCreditInput struct {
	ReturnID uint
	OrderID  uint
	UserID   *uint
	Amount   float64
}

type CouponService interface {
	ValidateAndPrice(code string, subtotal float64, items []CartLine, userID *uint) (*CouponQuote, error)
	CreateCoupon(input CreateCouponInput) (*model.Coupon, error)
	ListCoupons(activeOnly bool, limit, offset int) ([]model.Coupon, int64, error)
	DeactivateCoupon(id uint) error
	MintStoreCredit(ctx context.Context, input StoreCreditInput) (*model.Coupon, error)
}

type couponService struct {
	couponRepo repository.CouponRepository
	orderRepo  repository.OrderRepository
	now        func() time.Time
}

func NewCouponService(couponRepo repository.CouponRepository, orderRepo repository.OrderRepository) CouponService {
	return &couponService{
		couponRepo: couponRepo,
		orderRepo:  orderRepo,
		now:        time.Now,
	}
}

func (s *couponService) ValidateAndPrice(code string, subtotal float64, items []CartLine, userID *uint) (*CouponQuote, error) {
	coupon, err := s.couponRepo.FindByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CouponQuote{Reason: CouponCodeNotFound}, nil
		}
		logger.Error("Failed to look up coupon", err, map[string]interface{}{
			"code": code,
		})
		return nil, err
	}

	var priorUses int64
	if userID != nil && coupon.PerUserLimit != nil {
		priorUses, err = s.orderRepo.CountCouponUses(*userID, coupon.ID)
		if err != nil {
			return nil, err
		}
	}

	quote := EvaluateCoupon(coupon, subtotal, items, userID != nil, priorUses, s.now())
	logger.Debug("Coupon evaluated", map[string]interface{}{
		"code":     coupon.Code,
		"valid":    quote.Valid,
		"reason":   quote.Reason,
		"discount": quote.DiscountAmount,
	})
	return &quote, nil
}

// EvaluateCoupon applies the validation chain and discount rules. It depends
// only on its arguments; the first failing check decides the reason.
func EvaluateCoupon(c *model.Coupon, subtotal float64, items []CartLine, hasUser bool, priorUserUses int64, now time.Time) CouponQuote {
	reject := func(r CouponRejection) CouponQuote {
		return CouponQuote{Reason: r, Coupon: c}
	}

	if !c.IsActive {
		return reject(CouponInactive)
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return reject(CouponNotYetActive)
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return reject(CouponExpired)
	}
	if subtotal < c.MinOrderValue {
		return reject(CouponBelowMinimum)
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return reject(CouponGlobalLimitReached)
	}
	if hasUser && c.PerUserLimit != nil && priorUserUses >= int64(*c.PerUserLimit) {
		return reject(CouponPerUserLimitReached)
	}
	if c.HasApplicability() && !appliesToCart(c, items) {
		return reject(CouponNotApplicable)
	}

	quote := CouponQuote{Valid: true, Coupon: c}
	switch c.DiscountType {
	case model.DiscountPercentage:
		discount := subtotal * c.DiscountValue / 100
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
		quote.DiscountAmount = util.RoundMoney(discount)
	case model.DiscountFixedAmount:
		quote.DiscountAmount = util.RoundMoney(c.DiscountValue)
	case model.DiscountFreeShipping:
		quote.FreeShipping = true
	}
	return quote
}

func appliesToCart(c *model.Coupon, items []CartLine) bool {
	products := make(map[uint]struct{}, len(c.ProductIDs))
	for _, id := range c.ProductIDs {
		products[id] = struct{}{}
	}
	categories := make(map[uint]struct{}, len(c.CategoryIDs))
	for _, id := range c.CategoryIDs {
		categories[id] = struct{}{}
	}

	for _, item := range items {
		if _, ok := products[item.ProductID]; ok {
			return true
		}
		if item.CategoryID != nil {
			if _, ok := categories[*item.CategoryID]; ok {
				return true
			}
		}
	}
	return false
}

func (s *couponService) CreateCoupon(input CreateCouponInput) (*model.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	switch {
	case code == "":
		return nil, validationf("coupon code is required")
	case !input.DiscountType.Valid():
		return nil, validationf("unknown discount type %q", input.DiscountType)
	case input.DiscountType == model.DiscountPercentage && (input.DiscountValue <= 0 || input.DiscountValue > 100):
		return nil, validationf("percentage must be within (0, 100]")
	case input.DiscountType == model.DiscountFixedAmount && input.DiscountValue <= 0:
		return nil, validationf("fixed discount must be positive")
	case input.MinOrderValue < 0:
		return nil, validationf("minimum order value cannot be negative")
	case input.MaxDiscount != nil && *input.MaxDiscount <= 0:
		return nil, validationf("max discount must be positive")
	case input.UsageLimit != nil && *input.UsageLimit <= 0:
		return nil, validationf("usage limit must be positive")
	case input.PerUserLimit != nil && *input.PerUserLimit <= 0:
		return nil, validationf("per-user limit must be positive")
	case input.StartsAt != nil && input.ExpiresAt != nil && !input.ExpiresAt.After(*input.StartsAt):
		return nil, validationf("expiry must be after start")
	}

	coupon := &model.Coupon{
		Code:          code,
		Description:   input.Description,
		DiscountType:  input.DiscountType,
		DiscountValue: input.DiscountValue,
		MinOrderValue: input.MinOrderValue,
		UsageLimit:    input.UsageLimit,
		PerUserLimit:  input.PerUserLimit,
		StartsAt:      input.StartsAt,
		ExpiresAt:     input.ExpiresAt,
		IsActive:      true,
		ProductIDs:    input.ProductIDs,
		CategoryIDs:   input.CategoryIDs,
	}
	if input.DiscountType == model.DiscountPercentage {
		coupon.MaxDiscount = input.MaxDiscount
	}
	if input.DiscountType == model.DiscountFreeShipping {
		coupon.DiscountValue = 0
	}

	if err := s.couponRepo.Create(coupon); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflictf("coupon %s already exists", code)
		}
		return nil, err
	}

	logger.Info("Coupon created", map[string]interface{}{
		"coupon_id": coupon.ID,
		"code":      coupon.Code,
		"type":      coupon.DiscountType,
	})
	return coupon, nil
}

func (s *couponService) ListCoupons(activeOnly bool, limit, offset int) ([]model.Coupon, int64, error) {
	return s.couponRepo.List(activeOnly, limit, offset)
}

func (s *couponService) DeactivateCoupon(id uint) error {
	if err := s.couponRepo.Deactivate(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCouponNotFound
		}
		return err
	}
	logger.Info("Coupon deactivated", map[string]interface{}{
		"coupon_id": id,
	})
	return nil
}

const storeCreditAttempts = 5

// MintStoreCredit issues a single-use fixed-amount coupon. Codes are
// "SC-" + UTC timestamp + random suffix; a duplicate code is retried.
func (s *couponService) MintStoreCredit(ctx context.Context, input StoreCreditInput) (*model.Coupon, error) {
	if input.Amount <= 0 {
		return nil, validationf("store credit amount must be positive")
	}
	// One credit per order, whichever return asked for it.
	if input.OrderID != 0 {
		existing, err := s.couponRepo.FindStoreCreditByOrderID(input.OrderID)
		if err == nil {
			return nil, conflictf("order %d already received store credit %s", input.OrderID, existing.Code)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	one := 1

	for attempt := 1; attempt <= storeCreditAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		suffix, err := util.RandomCode(6)
		if err != nil {
			return nil, fmt.Errorf("generate store credit code: %w", err)
		}
		returnID := input.ReturnID
		var orderID *uint
		if input.OrderID != 0 {
			id := input.OrderID
			orderID = &id
		}
		usageLimit, perUserLimit := one, one

		coupon := &model.Coupon{
			Code:           fmt.Sprintf("SC-%s-%s", s.now().UTC().Format("20060102150405"), suffix),
			Description:    fmt.Sprintf("Store credit for return #%d", input.ReturnID),
			DiscountType:   model.DiscountFixedAmount,
			DiscountValue:  util.RoundMoney(input.Amount),
			UsageLimit:     &usageLimit,
			PerUserLimit:   &perUserLimit,
			IsActive:       true,
			IssuedToUserID: input.UserID,
			SourceReturnID: &returnID,
			SourceOrderID:  orderID,
		}

		err = s.couponRepo.Create(coupon)
		if err == nil {
			logger.Info("Store credit minted", map[string]interface{}{
				"coupon_id": coupon.ID,
				"code":      coupon.Code,
				"return_id": input.ReturnID,
				"amount":    coupon.DiscountValue,
			})
			return coupon, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		logger.Warn("Store credit code collision, retrying", map[string]interface{}{
			"code":    coupon.Code,
			"attempt": attempt,
		})
	}
	return nil, conflictf("could not allocate a unique store credit code")
}
