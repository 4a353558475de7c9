package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. Transport layers map kinds to status codes.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindAccessDenied   Kind = "access_denied"
	KindConflict       Kind = "conflict"
	KindAuthentication Kind = "authentication"
	KindTransient      Kind = "transient"
)

// Machine readable codes carried by Error.
const (
	CodeInvalidInput         = "invalid_input"
	CodeEmptyOrder           = "empty_order"
	CodeInvalidQuantity      = "invalid_quantity"
	CodeDuplicateProduct     = "duplicate_product"
	CodeUnavailableProduct   = "unavailable_product"
	CodeInsufficientStock    = "insufficient_stock"
	CodeIllegalTransition    = "illegal_transition"
	CodeAlreadyDelivered     = "already_delivered"
	CodeAlreadyCancelled     = "already_cancelled"
	CodeOrderNumberCollision = "order_number_collision"
	CodeAddressNotFound      = "address_not_found"
	CodeAddressNotOwned      = "address_not_owned"
	CodeOrderNotFound        = "order_not_found"
	CodeProductNotFound      = "product_not_found"
	CodeAccessDenied         = "access_denied"
	CodeInvalidSignature     = "invalid_signature"
	CodePaymentNotAllowed    = "payment_not_allowed"
	CodeStorageUnavailable   = "storage_unavailable"
	CodeProviderUnavailable  = "provider_unavailable"
)

var (
	ErrInvalidQuantity      = &Error{Kind: KindValidation, Code: CodeInvalidQuantity}
	ErrUnavailableProduct   = &Error{Kind: KindValidation, Code: CodeUnavailableProduct}
	ErrInsufficientStock    = &Error{Kind: KindConflict, Code: CodeInsufficientStock}
	ErrIllegalTransition    = &Error{Kind: KindConflict, Code: CodeIllegalTransition}
	ErrAlreadyDelivered     = &Error{Kind: KindConflict, Code: CodeAlreadyDelivered}
	ErrAlreadyCancelled     = &Error{Kind: KindConflict, Code: CodeAlreadyCancelled}
	ErrOrderNumberCollision = &Error{Kind: KindConflict, Code: CodeOrderNumberCollision}
	ErrAddressNotFound      = &Error{Kind: KindNotFound, Code: CodeAddressNotFound}
	ErrAddressNotOwned      = &Error{Kind: KindValidation, Code: CodeAddressNotOwned}
	ErrOrderNotFound        = &Error{Kind: KindNotFound, Code: CodeOrderNotFound}
	ErrProductNotFound      = &Error{Kind: KindNotFound, Code: CodeProductNotFound}
	ErrAccessDenied         = &Error{Kind: KindAccessDenied, Code: CodeAccessDenied}
	ErrInvalidSignature     = &Error{Kind: KindAuthentication, Code: CodeInvalidSignature}
	ErrPaymentNotAllowed    = &Error{Kind: KindConflict, Code: CodePaymentNotAllowed}
	ErrDuplicateProduct     = &Error{Kind: KindValidation, Code: CodeDuplicateProduct}
)

// Error is the structured failure returned by every operation of the order core.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so sentinels such as ErrInsufficientStock work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// Newf builds an error from a sentinel, keeping its kind and code.
func Newf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// Validation constructs a ValidationError with the generic invalid-input code.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps an infrastructure failure that may succeed on retry.
func Transient(code, message string, err error) *Error {
	if code == "" {
		code = CodeStorageUnavailable
	}
	return &Error{Kind: KindTransient, Code: code, Message: message, Err: err}
}

// KindOf reports the kind of err. Errors that did not originate in the core are treated as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindTransient
}

// CodeOf reports the machine readable code of err, if it carries one.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// PublicMessage returns a message that is safe to show to callers.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindTransient {
		return "service temporarily unavailable"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
