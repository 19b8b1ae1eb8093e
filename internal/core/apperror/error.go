// Package apperror defines the error vocabulary shared by the ledger services and
// the HTTP layer. Services return *AppError for every outcome a client can act on;
// anything else is reported as INTERNAL_ERROR.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInternal = "INTERNAL_ERROR"
	CodeTimeout  = "OPERATION_TIMEOUT"

	CodeValidation        = "VALIDATION_ERROR"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"

	CodeConflict            = "CONFLICT"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeTransferState       = "TRANSFER_STATE_INVALID"
	CodeReviewedLocked      = "RECONCILIATION_REVIEWED"
	CodeIdempotency         = "IDEMPOTENCY_CONFLICT"
)

// AppError carries a stable code, a client-safe message and optional details.
// Err is logged but never serialized.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func newError(status int, code, message string, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets details[key]. It mutates and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func NewValidation(message string) *AppError {
	return newError(http.StatusBadRequest, CodeValidation, message, nil)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, entity+" not found",
		map[string]any{"entity": entity, "id": id})
}

func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, message, nil)
}

func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, CodeConflict, message, nil)
}

// NewInsufficientStock is returned when a movement would take a balance below zero.
// Quantities are decimal strings.
func NewInsufficientStock(productID, locationID string, current, requested string) *AppError {
	return newError(http.StatusUnprocessableEntity, CodeInsufficientStock, "Insufficient stock",
		map[string]any{
			"product_id":  productID,
			"location_id": locationID,
			"on_hand":     current,
			"requested":   requested,
		})
}

// NewConcurrencyConflict means lock or version contention outlasted the retry budget.
func NewConcurrencyConflict(entity string, key any) *AppError {
	return newError(http.StatusConflict, CodeConcurrencyConflict,
		"Concurrent modification detected, retry the operation",
		map[string]any{"entity": entity, "key": key})
}

func NewTransferState(transferID any, from, to string) *AppError {
	return newError(http.StatusConflict, CodeTransferState,
		fmt.Sprintf("Transfer cannot move from %s to %s", from, to),
		map[string]any{"transfer_id": transferID, "from": from, "to": to})
}

// NewOperationTimeout leaves state unchanged, so the caller may retry.
func NewOperationTimeout(operation string) *AppError {
	return newError(http.StatusGatewayTimeout, CodeTimeout,
		"Operation timed out, it is safe to retry",
		map[string]any{"operation": operation})
}

func NewReviewedRecordLocked(recordID any, reviewedBy string) *AppError {
	return newError(http.StatusLocked, CodeReviewedLocked,
		"Reconciliation record has been reviewed and is locked",
		map[string]any{"record_id": recordID, "reviewed_by": reviewedBy})
}

// NewInternal hides err from the client.
func NewInternal(err error) *AppError {
	e := newError(http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	e.Err = err
	return e
}

// NewIdempotencyConflict: the key is still being processed by another request.
func NewIdempotencyConflict(key string) *AppError {
	return newError(http.StatusConflict, CodeIdempotency,
		"Operation already in progress or completed",
		map[string]any{"idempotency_key": key})
}

// NewIdempotencyMismatch: the key was reused for a different request body or user.
func NewIdempotencyMismatch(key string) *AppError {
	return newError(http.StatusConflict, CodeIdempotency, "Idempotency key mismatch",
		map[string]any{"idempotency_key": key})
}

// AsAppError finds an *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool            { return HasCode(err, CodeNotFound) }
func IsValidation(err error) bool          { return HasCode(err, CodeValidation) }
func IsInsufficientStock(err error) bool   { return HasCode(err, CodeInsufficientStock) }
func IsConcurrencyConflict(err error) bool { return HasCode(err, CodeConcurrencyConflict) }
func IsTransferState(err error) bool       { return HasCode(err, CodeTransferState) }
func IsTimeout(err error) bool             { return HasCode(err, CodeTimeout) }
func IsReviewedLocked(err error) bool      { return HasCode(err, CodeReviewedLocked) }
