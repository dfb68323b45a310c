package service

import (
	"fmt"

	apperrors "github.com/ikkim/storefront-backend/internal/errors"
)

var (
	ErrOrderNotFound    = fmt.Errorf("%w: order not found", apperrors.ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("%w: product not found", apperrors.ErrNotFound)
	ErrPaymentNotFound  = fmt.Errorf("%w: payment not found", apperrors.ErrNotFound)
	ErrCouponNotFound   = fmt.Errorf("%w: coupon not found", apperrors.ErrNotFound)
	ErrReturnNotFound   = fmt.Errorf("%w: return request not found", apperrors.ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("%w: user not found", apperrors.ErrNotFound)
	ErrEmptyOrder       = fmt.Errorf("%w: order has no items", apperrors.ErrValidation)
	ErrOrderNotOwned    = fmt.Errorf("%w: order belongs to another customer", apperrors.ErrForbidden)
	ErrAdminRequired    = fmt.Errorf("%w: admin identity required", apperrors.ErrForbidden)
	ErrAmountMismatch   = fmt.Errorf("%w: amount does not match order total", apperrors.ErrValidation)
	ErrGatewayFailure   = fmt.Errorf("%w: payment gateway unavailable", apperrors.ErrGateway)
	ErrCarrierFailure   = fmt.Errorf("%w: shipment carrier unavailable", apperrors.ErrGateway)
	ErrInvalidSignature = apperrors.ErrInvalidSignature

	ErrReturnVerificationFailed = fmt.Errorf("%w: %w", apperrors.ErrForbidden, apperrors.ErrVerificationFailed)
)

func insufficientStock(productID uint, name string) error {
	return fmt.Errorf("%w: %s (product %d)", apperrors.ErrInsufficientStock, name, productID)
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{apperrors.ErrConflict}, args...)...)
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{apperrors.ErrValidation}, args...)...)
}
