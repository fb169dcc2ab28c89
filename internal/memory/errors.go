package memory

import (
	"errors"
	"fmt"
)

// Error represents a failure of a store or overlay operation.
//
// Store and overlay errors are synchronous and local: they are returned to the
// caller that attempted the access and never retried. The store is left
// unmodified whenever an Error is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Address is the offending cell address, when one applies.
	Address int

	// Name is the variable name, for layout operations.
	Name string
}

// ErrorCode categorizes memory errors.
type ErrorCode string

const (
	// ErrCodeOutOfRange indicates an address outside [0, size).
	ErrCodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// ErrCodeInvalidDeclaration indicates a malformed kind/sub-address/address
	// combination when declaring a variable.
	ErrCodeInvalidDeclaration ErrorCode = "INVALID_VARIABLE_DECLARATION"

	// ErrCodeOutOfDomain indicates a write value outside the legal range for
	// the variable kind.
	ErrCodeOutOfDomain ErrorCode = "VALUE_OUT_OF_DOMAIN"

	// ErrCodeUnknownVariable indicates a layout lookup for an undeclared name.
	ErrCodeUnknownVariable ErrorCode = "UNKNOWN_VARIABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (variable=%s)", e.Code, e.Message, e.Name)
	}
	if e.Code == ErrCodeOutOfRange {
		return fmt.Sprintf("%s: %s (addr=%d)", e.Code, e.Message, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsOutOfRange reports whether err is an out-of-range address error.
func IsOutOfRange(err error) bool {
	return hasCode(err, ErrCodeOutOfRange)
}

// IsInvalidDeclaration reports whether err is an invalid variable declaration.
func IsInvalidDeclaration(err error) bool {
	return hasCode(err, ErrCodeInvalidDeclaration)
}

// IsOutOfDomain reports whether err is a value-out-of-domain error.
func IsOutOfDomain(err error) bool {
	return hasCode(err, ErrCodeOutOfDomain)
}

// IsUnknownVariable reports whether err is an unknown variable error.
func IsUnknownVariable(err error) bool {
	return hasCode(err, ErrCodeUnknownVariable)
}

func outOfRange(addr, size int) *Error {
	return &Error{
		Code:    ErrCodeOutOfRange,
		Message: fmt.Sprintf("address %d outside [0, %d)", addr, size),
		Address: addr,
	}
}

func invalidDeclaration(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidDeclaration,
		Message: fmt.Sprintf(format, args...),
	}
}

func outOfDomain(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeOutOfDomain,
		Message: fmt.Sprintf(format, args...),
	}
}
