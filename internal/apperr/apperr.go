// Package apperr defines the stable error codes returned by dispatch
// operations and their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
	CodeAccessDenied          Code = "ACCESS_DENIED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInvalidPaymentDetails Code = "INVALID_PAYMENT_DETAILS"
	CodeInsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	CodeNoUnitsRemaining      Code = "NO_UNITS_REMAINING"
	CodeDeliveryUnavailable   Code = "DELIVERY_UNAVAILABLE"
	CodeAlreadyAccepted       Code = "ALREADY_ACCEPTED"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeAlreadyPaid           Code = "ALREADY_PAID"
	CodePaymentDeclined       Code = "PAYMENT_DECLINED"
	CodeValidationFailed      Code = "VALIDATION_FAILED"
	CodeConflict              Code = "CONFLICT"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
)

// Sentinels for errors.Is checks. They match any *Error carrying the same code.
var (
	ErrUnauthenticated       = &Error{Code: CodeUnauthenticated}
	ErrAccessDenied          = &Error{Code: CodeAccessDenied}
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrInvalidAmount         = &Error{Code: CodeInvalidAmount}
	ErrInvalidPaymentDetails = &Error{Code: CodeInvalidPaymentDetails}
	ErrInsufficientFunds     = &Error{Code: CodeInsufficientFunds}
	ErrNoUnitsRemaining      = &Error{Code: CodeNoUnitsRemaining}
	ErrDeliveryUnavailable   = &Error{Code: CodeDeliveryUnavailable}
	ErrAlreadyAccepted       = &Error{Code: CodeAlreadyAccepted}
	ErrInvalidTransition     = &Error{Code: CodeInvalidTransition}
	ErrAlreadyPaid           = &Error{Code: CodeAlreadyPaid}
	ErrPaymentDeclined       = &Error{Code: CodePaymentDeclined}
	ErrValidationFailed      = &Error{Code: CodeValidationFailed}
	ErrConflict              = &Error{Code: CodeConflict}
	ErrStoreUnavailable      = &Error{Code: CodeStoreUnavailable}
)

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Code)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MessageOf returns the human-readable message without the wrapped cause for
// domain errors, and the plain error text otherwise.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return defaultMessage(e.Code)
	}
	return err.Error()
}

// HTTPStatus maps a code to the status returned by the HTTP layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidAmount, CodeInvalidPaymentDetails, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeInsufficientFunds, CodeNoUnitsRemaining, CodePaymentDeclined:
		return http.StatusPaymentRequired
	case CodeDeliveryUnavailable, CodeAlreadyAccepted, CodeInvalidTransition, CodeAlreadyPaid, CodeConflict:
		return http.StatusConflict
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(c Code) string {
	switch c {
	case CodeUnauthenticated:
		return "authentication required"
	case CodeAccessDenied:
		return "access denied"
	case CodeNotFound:
		return "not found"
	case CodeInvalidAmount:
		return "amount must be positive"
	case CodeInvalidPaymentDetails:
		return "invalid payment details"
	case CodeInsufficientFunds:
		return "insufficient funds"
	case CodeNoUnitsRemaining:
		return "no units remaining"
	case CodeDeliveryUnavailable:
		return "delivery is no longer available"
	case CodeAlreadyAccepted:
		return "delivery already accepted by another rider"
	case CodeInvalidTransition:
		return "invalid status transition"
	case CodeAlreadyPaid:
		return "delivery already paid"
	case CodePaymentDeclined:
		return "payment declined"
	case CodeValidationFailed:
		return "validation failed"
	case CodeConflict:
		return "conflict"
	case CodeStoreUnavailable:
		return "store unavailable"
	default:
		return "internal error"
	}
}
