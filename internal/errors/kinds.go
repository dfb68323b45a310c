package errors

import "errors"

// Error kinds shared by the service layer. Concrete errors wrap one of these
// with fmt.Errorf("%w: ...") so handlers can classify them with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrGateway            = errors.New("gateway error")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrVerificationFailed = errors.New("verification failed")
)

// Kind returns the kind sentinel err wraps, or nil when it wraps none.
func Kind(err error) error {
	for _, kind := range []error{
		ErrVerificationFailed,
		ErrInvalidSignature,
		ErrInsufficientStock,
		ErrGateway,
		ErrValidation,
		ErrNotFound,
		ErrUnauthorized,
		ErrForbidden,
		ErrConflict,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
