package errors

// Error codes returned to clients.
// Format: CATEGORY_SPECIFIC_DETAIL

const (
	// auth
	AuthUnauthorized       = "AUTH_UNAUTHORIZED"
	AuthTokenExpired       = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"
	AuthVerificationFailed = "AUTH_VERIFICATION_FAILED"

	// authz
	AuthzForbidden    = "AUTHZ_FORBIDDEN"
	AuthzRoleNotFound = "AUTHZ_ROLE_NOT_FOUND"
	AuthzAdminOnly    = "AUTHZ_ADMIN_ONLY"

	// validation
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// resources
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// orders and stock
	OrderInsufficientStock = "ORDER_INSUFFICIENT_STOCK"
	OrderInvalidTransition = "ORDER_INVALID_TRANSITION"

	// coupons
	CouponRejected = "COUPON_REJECTED"

	// payments
	PaymentInvalidSignature = "PAYMENT_INVALID_SIGNATURE"
	PaymentGatewayError     = "PAYMENT_GATEWAY_ERROR"

	// uploads
	UploadInvalidFileType = "UPLOAD_INVALID_FILE_TYPE"
	UploadFailed          = "UPLOAD_FAILED"

	// internal
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
)
