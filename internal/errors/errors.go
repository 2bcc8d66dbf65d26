package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess               Code = 0
	CodeInternal              Code = 1
	CodeUsage                 Code = 2
	CodeValidation            Code = 3
	CodeInvalidKey            Code = 4
	CodeConfig                Code = 5
	CodeUnavailable           Code = 12
	CodeUnsupported           Code = 13
	CodeBlocked               Code = 16
	CodeNotFound              Code = 17
	CodeInsufficientAllowance Code = 20
	CodeInsufficientBalance   Code = 21
	CodeEncoding              Code = 22
	CodeSigner                Code = 23
	CodeReverted              Code = 24
	CodeConfirmationTimeout   Code = 25
)

// Error is a typed error that carries a stable error code.
// Current and Required are only set for insufficient-resource failures.
type Error struct {
	Code     Code
	Message  string
	Cause    error
	Current  string
	Required string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Insufficient builds an allowance or balance shortfall error. Amounts are
// expected in display units.
func Insufficient(code Code, current, required string) *Error {
	what := "balance"
	if code == CodeInsufficientAllowance {
		what = "allowance"
	}
	return &Error{
		Code:     code,
		Message:  fmt.Sprintf("Insufficient %s. Current: %s, Required: %s", what, current, required),
		Current:  current,
		Required: required,
	}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	if cErr, ok := As(err); ok {
		return cErr.Code == code
	}
	return false
}

// IsUserFacing reports whether the error message is safe and useful to show
// to an end user verbatim.
func IsUserFacing(err error) bool {
	cErr, ok := As(err)
	if !ok {
		return false
	}
	switch cErr.Code {
	case CodeValidation, CodeInvalidKey, CodeUnsupported, CodeInsufficientAllowance, CodeInsufficientBalance, CodeBlocked, CodeNotFound:
		return true
	default:
		return false
	}
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
