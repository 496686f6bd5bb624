// Package errors provides custom error types for the Custodia API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrAccountLocked      = &AppError{Code: "ACCOUNT_LOCKED", Message: "Account is temporarily locked", StatusCode: http.StatusLocked}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
	ErrWrongPassword  = &AppError{Code: "WRONG_PASSWORD", Message: "Current password is incorrect", StatusCode: http.StatusBadRequest}
)

// Client errors.
var (
	ErrClientNotFound    = &AppError{Code: "CLIENT_NOT_FOUND", Message: "Client not found", StatusCode: http.StatusNotFound}
	ErrClientDeactivated = &AppError{Code: "CLIENT_DEACTIVATED", Message: "Client is already deactivated", StatusCode: http.StatusConflict}
	ErrDuplicateDocument = &AppError{Code: "DUPLICATE_DOCUMENT", Message: "A client with this document already exists", StatusCode: http.StatusConflict}
)

// Advisor errors.
var (
	ErrAdvisorNotFound = &AppError{Code: "ADVISOR_NOT_FOUND", Message: "Advisor not found", StatusCode: http.StatusNotFound}
)

// Asset errors.
var (
	ErrAssetNotFound    = &AppError{Code: "ASSET_NOT_FOUND", Message: "Asset not found", StatusCode: http.StatusNotFound}
	ErrDuplicateTicker  = &AppError{Code: "DUPLICATE_TICKER", Message: "An asset with this ticker already exists", StatusCode: http.StatusConflict}
	ErrTickerNotCovered = &AppError{Code: "TICKER_NOT_COVERED", Message: "Market data provider has no data for this ticker", StatusCode: http.StatusBadRequest}
	ErrAssetDeactivated = &AppError{Code: "ASSET_DEACTIVATED", Message: "Asset is already deactivated", StatusCode: http.StatusConflict}
)

// Allocation errors.
var (
	ErrAllocationNotFound = &AppError{Code: "ALLOCATION_NOT_FOUND", Message: "Allocation not found", StatusCode: http.StatusNotFound}
	ErrAllocationClosed   = &AppError{Code: "ALLOCATION_CLOSED", Message: "Allocation is already closed", StatusCode: http.StatusBadRequest}
	ErrAllocationNotOpen  = &AppError{Code: "ALLOCATION_NOT_OPEN", Message: "Cannot update a closed allocation", StatusCode: http.StatusBadRequest}
)

// Commission errors.
var (
	ErrCommissionNotFound  = &AppError{Code: "COMMISSION_NOT_FOUND", Message: "Commission not found", StatusCode: http.StatusNotFound}
	ErrInvalidStatusChange = &AppError{Code: "INVALID_STATUS_CHANGE", Message: "Commission status transition is not allowed", StatusCode: http.StatusBadRequest}
)
