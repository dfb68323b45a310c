package errors

import (
	stderrors "errors"
	"strings"

	"gorm.io/gorm"
)

// ErrorInfo is a classified error code with a client-safe message.
type ErrorInfo struct {
	Code    string
	Message string
}

// ParseError converts storage and transport errors into client-safe codes.
// Database details are never echoed back.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: InternalServerError, Message: "internal server error"}
	}

	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{Code: ResourceNotFound, Message: notFoundMessage(context)}
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "resource already exists"}
	}

	lower := strings.ToLower(err.Error())

	// untranslated driver errors
	if strings.Contains(lower, "duplicate key") || strings.Contains(lower, "unique constraint") {
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "resource already exists"}
	}
	if strings.Contains(lower, "foreign key constraint") {
		return ErrorInfo{Code: ResourceNotFound, Message: "referenced resource does not exist"}
	}
	if strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") {
		return ErrorInfo{Code: InternalExternalAPI, Message: "upstream service unavailable, please retry later"}
	}

	return ErrorInfo{Code: InternalServerError, Message: "internal server error, please retry later"}
}

func notFoundMessage(context string) string {
	ctx := strings.ToLower(context)
	switch {
	case strings.Contains(ctx, "order"):
		return "order not found"
	case strings.Contains(ctx, "return"):
		return "return request not found"
	case strings.Contains(ctx, "coupon"):
		return "coupon not found"
	case strings.Contains(ctx, "payment"):
		return "payment not found"
	}
	return "requested resource not found"
}
