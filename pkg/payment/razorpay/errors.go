package razorpay

import "errors"

var (
	// ErrInvalidConfig is returned when key id or secret is missing
	ErrInvalidConfig = errors.New("razorpay: key id and secret are required")

	// ErrInvalidRequest is returned when call parameters are invalid
	ErrInvalidRequest = errors.New("razorpay: invalid request parameters")

	// ErrTimeout is returned when the gateway does not answer within the configured timeout
	ErrTimeout = errors.New("razorpay: request timed out")

	// ErrInvalidResponse is returned when the gateway answers without the expected fields
	ErrInvalidResponse = errors.New("razorpay: unexpected response")

	// ErrMalformedWebhook is returned when a webhook body cannot be decoded
	ErrMalformedWebhook = errors.New("razorpay: malformed webhook payload")
)
