package carrier

import "errors"

var (
	// ErrInvalidRequest is returned when the request parameters are invalid
	ErrInvalidRequest = errors.New("carrier: invalid request parameters")

	// ErrNetworkError is returned when the carrier cannot be reached
	ErrNetworkError = errors.New("carrier: network error")

	// ErrUnauthorized is returned when the API token is rejected
	ErrUnauthorized = errors.New("carrier: unauthorized")

	// ErrRejected is returned when the carrier refuses the request
	ErrRejected = errors.New("carrier: request rejected")
)
