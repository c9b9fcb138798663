package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses and websocket error frames.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Retryable  bool   `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Error codes.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeCardAlreadyLinked = "CARD_ALREADY_LINKED"
	CodeAlreadyLinked     = "ALREADY_LINKED"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeDuplicatePayment  = "DUPLICATE_PAYMENT"
	CodeFeatureDisabled   = "FEATURE_DISABLED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeTransientIO       = "TRANSIENT_IO"
	CodeInternal          = "INTERNAL"
)

// ---- Validation ----

// Validation returns a 400 error for missing or malformed input.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrPayloadTooLarge() *AppError {
	return New(CodeValidation, "Request body too large", http.StatusRequestEntityTooLarge)
}

func ErrInvalidAmount() *AppError {
	return Validation("Amount must be a positive number")
}

// ---- Lookup & conflicts ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrCardAlreadyLinked() *AppError {
	return New(CodeCardAlreadyLinked, "This RFID card is already assigned to another user", http.StatusConflict)
}

func ErrAlreadyLinked() *AppError {
	return New(CodeAlreadyLinked, "An RFID card is already linked to this account", http.StatusConflict)
}

// ---- Wallet ----

func ErrInsufficientFunds(available int64) *AppError {
	return New(CodeInsufficientFunds, fmt.Sprintf("Insufficient balance. Available: %d", available), http.StatusPaymentRequired)
}

// ---- Authentication ----

func ErrUnauthorized() *AppError {
	return New(CodeUnauthorized, "Authentication required", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(CodeUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

// ---- Payment collaborator ----

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Payment verification failed", http.StatusBadRequest)
}

func ErrDuplicatePayment() *AppError {
	return New(CodeDuplicatePayment, "Payment has already been processed", http.StatusConflict)
}

func ErrFeatureDisabled(feature string) *AppError {
	return New(CodeFeatureDisabled, fmt.Sprintf("%s is not enabled", feature), http.StatusServiceUnavailable)
}

// ---- Rate Limiting ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure ----

// ErrTransient marks a storage or network hiccup. No partial state was committed; the caller may retry.
func ErrTransient(err error) *AppError {
	e := Wrap(CodeTransientIO, "Temporary storage failure, please retry", http.StatusServiceUnavailable, err)
	e.Retryable = true
	return e
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(CodeInternal, "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an unclassified error. Only the generic message reaches the client.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
