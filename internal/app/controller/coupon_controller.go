package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

type CouponController struct {
	couponService service.CouponService
	orderService  service.OrderService
}

func NewCouponController(couponService service.CouponService, orderService service.OrderService) *CouponController {
	return &CouponController{
		couponService: couponService,
		orderService:  orderService,
	}
}

type ValidateCouponRequest struct {
	Code  string                   `json:"code" binding:"required"`
	Items []service.OrderLineInput `json:"items" binding:"required,min=1,dive"`
}

// ValidateCoupon prices the cart with the coupon applied
// POST /api/v1/coupons/validate
func (ctrl *CouponController) ValidateCoupon(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req ValidateCouponRequest
	if !bindJSON(c, log, &req) {
		return
	}

	quote, err := ctrl.orderService.QuoteCart(req.Items, req.Code, middleware.OptionalUserID(c))
	if err != nil {
		respondServiceError(c, log, "Failed to validate coupon", err, map[string]interface{}{
			"code": req.Code,
		})
		return
	}

	log.Debug("Coupon evaluated", map[string]interface{}{
		"code":  req.Code,
		"valid": quote.Coupon != nil && quote.Coupon.Valid,
	})
	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

// CreateCoupon creates a coupon
// POST /api/v1/admin/coupons
func (ctrl *CouponController) CreateCoupon(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req service.CreateCouponInput
	if !bindJSON(c, log, &req) {
		return
	}

	coupon, err := ctrl.couponService.CreateCoupon(req)
	if err != nil {
		respondServiceError(c, log, "Failed to create coupon", err, map[string]interface{}{
			"code": req.Code,
		})
		return
	}

	log.Info("Coupon created", map[string]interface{}{
		"coupon_id": coupon.ID,
		"code":      coupon.Code,
	})
	c.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

// ListCoupons lists coupons, active ones only with ?active=true
// GET /api/v1/admin/coupons
func (ctrl *CouponController) ListCoupons(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	limit, offset := pagination(c)
	coupons, total, err := ctrl.couponService.ListCoupons(c.Query("active") == "true", limit, offset)
	if err != nil {
		respondServiceError(c, log, "Failed to list coupons", err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"coupons": coupons,
		"total":   total,
	})
}

// DeactivateCoupon stops a coupon from applying to new orders
// PUT /api/v1/admin/coupons/:id/deactivate
func (ctrl *CouponController) DeactivateCoupon(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := ctrl.couponService.DeactivateCoupon(id); err != nil {
		respondServiceError(c, log, "Failed to deactivate coupon", err, map[string]interface{}{
			"coupon_id": id,
		})
		return
	}

	log.Info("Coupon deactivated", map[string]interface{}{
		"coupon_id": id,
	})
	c.JSON(http.StatusOK, gin.H{"message": "coupon deactivated"})
}
