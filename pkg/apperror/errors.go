package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. TX_* never reach the ledger, LEDGER_* come back from it.
const (
	CodeInvalidTransition = "TX_001"
	CodeNotFound          = "TX_002"
	CodeDataIntegrity     = "TX_003"
	CodeValidation        = "TX_004"
	CodeRejected          = "LEDGER_001"
	CodeUnauthorized      = "LEDGER_002"
	CodeConnectivity      = "LEDGER_003"
	CodeInvalidToken      = "AUTH_001"
	CodeIdentityMismatch  = "AUTH_002"
	CodeRateLimited       = "RATE_001"
	CodeRequestInFlight   = "IDEM_001"
	CodeInternal          = "SYS_001"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code          string  `json:"error_code"`
	Message       string  `json:"message"`
	HTTPStatus    int     `json:"-"`
	Operation     string  `json:"operation,omitempty"`
	TransactionID *uint64 `json:"transaction_id,omitempty"`
	Err           error   `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Operation != "" {
		msg += " (op=" + e.Operation
		if e.TransactionID != nil {
			msg += fmt.Sprintf(" tx=%d", *e.TransactionID)
		}
		msg += ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so sentinel-style checks work:
// errors.Is(err, apperror.ErrRejected(nil)).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
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

// For returns a copy of e annotated with the attempted operation and
// transaction id.
func (e *AppError) For(operation string, id uint64) *AppError {
	c := *e
	c.Operation = operation
	c.TransactionID = &id
	return &c
}

// HasCode reports whether err carries an *AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// CodeOf returns the code of the first *AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Local guards (TX) ----

func ErrInvalidTransition(from string, role string) *AppError {
	return New(CodeInvalidTransition,
		fmt.Sprintf("Transition not allowed from %s for %s", from, role),
		http.StatusConflict)
}

// ErrNotParty rejects an actor that holds the right role but is not the
// transaction's party for it.
func ErrNotParty(role string) *AppError {
	return New(CodeInvalidTransition,
		fmt.Sprintf("Acting identity is not the %s of this transaction", role),
		http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrDataIntegrity(err error) *AppError {
	return Wrap(CodeDataIntegrity, "Ledger returned a malformed transaction", http.StatusBadGateway, err)
}

// Validation returns a TX_004 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Ledger outcomes (LEDGER) ----

func ErrRejected(err error) *AppError {
	return Wrap(CodeRejected, "Ledger rejected the operation", http.StatusConflict, err)
}

func ErrUnauthorized(err error) *AppError {
	return Wrap(CodeUnauthorized, "Acting identity is not permitted", http.StatusForbidden, err)
}

// ErrConnectivity marks an indeterminate outcome: the call may or may not
// have taken effect.
func ErrConnectivity(err error) *AppError {
	return Wrap(CodeConnectivity, "Ledger unreachable, outcome unknown", http.StatusServiceUnavailable, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrIdentityMismatch() *AppError {
	return New(CodeIdentityMismatch, "Token identity does not match this client", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Idempotency (IDEM) ----

func ErrRequestInFlight() *AppError {
	return New(CodeRequestInFlight, "A request with this Idempotency-Key is still in progress", http.StatusConflict)
}

// ---- System (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
