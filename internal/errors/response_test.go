package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type reasonedErr struct{ reason string }

func (e reasonedErr) Error() string  { return "coupon rejected: " + e.reason }
func (e reasonedErr) Reason() string { return e.reason }
func (e reasonedErr) Unwrap() error  { return ErrValidation }

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("%w: order", ErrNotFound), http.StatusNotFound, ResourceNotFound},
		{"conflict", fmt.Errorf("%w: already approved", ErrConflict), http.StatusConflict, ResourceConflict},
		{"stock", fmt.Errorf("%w: product 3", ErrInsufficientStock), http.StatusConflict, OrderInsufficientStock},
		{"signature", ErrInvalidSignature, http.StatusBadRequest, PaymentInvalidSignature},
		{"verification beats forbidden", fmt.Errorf("%w: %w", ErrForbidden, ErrVerificationFailed), http.StatusForbidden, AuthVerificationFailed},
		{"coupon reason", reasonedErr{reason: "Expired"}, http.StatusUnprocessableEntity, CouponRejected},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, ResourceNotFound},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
