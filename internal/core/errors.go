// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause under the base error's code.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound    = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData            = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrDataUnavailable   = &Error{Code: "DATA_UNAVAILABLE", Message: "market data unavailable"}
	ErrInsufficientData  = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}
	ErrOptimizationEmpty = &Error{Code: "OPTIMIZATION_EXHAUSTED", Message: "no parameter combination produced a usable backtest"}

	// Ledger rejections
	ErrInvalidOrder          = &Error{Code: "INVALID_ORDER", Message: "invalid order"}
	ErrInsufficientFunds     = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrInventoryLimit        = &Error{Code: "INVENTORY_LIMIT_EXCEEDED", Message: "inventory limit exceeded"}
	ErrInsufficientInventory = &Error{Code: "INSUFFICIENT_AVAILABLE_INVENTORY", Message: "insufficient available inventory"}

	// Persistence errors
	ErrPersistenceFailed = &Error{Code: "PERSISTENCE_FAILED", Message: "account state not persisted"}
	ErrVersionConflict   = &Error{Code: "VERSION_CONFLICT", Message: "account was modified concurrently"}

	// API errors
	ErrJobNotFound     = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrUnauthorized    = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
	ErrRechargeInvalid = &Error{Code: "RECHARGE_INVALID", Message: "recharge cannot be processed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
