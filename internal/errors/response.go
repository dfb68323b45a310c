package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`            // machine-readable code
	Message string `json:"message"`          // human readable message
	Reason  string `json:"reason,omitempty"` // precise rejection reason, when one exists
}

// reasoner is implemented by errors that carry a user-correctable reason,
// such as a rejected coupon.
type reasoner interface {
	Reason() string
}

// RespondWithError writes an error body with the given status and code.
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// Respond classifies a service error by kind and writes the matching response.
func Respond(c *gin.Context, err error) {
	status, code := StatusFor(err)
	body := ErrorResponse{Error: code, Message: err.Error()}

	var r reasoner
	if stderrors.As(err, &r) {
		body.Reason = r.Reason()
	}
	if status == http.StatusInternalServerError {
		info := ParseError(err, "")
		body.Error = info.Code
		body.Message = info.Message
	}
	c.JSON(status, body)
}

// StatusFor maps an error kind to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch Kind(err) {
	case ErrVerificationFailed:
		return http.StatusForbidden, AuthVerificationFailed
	case ErrInvalidSignature:
		return http.StatusBadRequest, PaymentInvalidSignature
	case ErrInsufficientStock:
		return http.StatusConflict, OrderInsufficientStock
	case ErrGateway:
		return http.StatusBadGateway, PaymentGatewayError
	case ErrValidation:
		var r reasoner
		if stderrors.As(err, &r) {
			return http.StatusUnprocessableEntity, CouponRejected
		}
		return http.StatusBadRequest, ValidationInvalidInput
	case ErrNotFound:
		return http.StatusNotFound, ResourceNotFound
	case ErrUnauthorized:
		return http.StatusUnauthorized, AuthUnauthorized
	case ErrForbidden:
		return http.StatusForbidden, AuthzForbidden
	case ErrConflict:
		return http.StatusConflict, ResourceConflict
	}
	info := ParseError(err, "")
	switch info.Code {
	case ResourceNotFound:
		return http.StatusNotFound, info.Code
	case ResourceAlreadyExists:
		return http.StatusConflict, info.Code
	}
	return http.StatusInternalServerError, info.Code
}

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "access denied"
	}
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func NotFound(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusNotFound, errorCode, message)
}

func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "internal server error, please retry later"
	}
	RespondWithError(c, http.StatusInternalServerError, InternalServerError, message)
}

// ValidationError carries per-field messages for binding failures.
type ValidationError struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func RespondWithValidationError(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, ValidationError{
		Error:   ValidationInvalidInput,
		Message: "invalid request data",
		Fields:  fields,
	})
}
