package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess      Code = 0
	CodeInternal     Code = 1
	CodeUsage        Code = 2
	CodeAuth         Code = 10
	CodeRateLimited  Code = 11
	CodeUnavailable  Code = 12
	CodeUnsupported  Code = 13
	CodePrecondition Code = 14
	CodeHost         Code = 15
	CodeBlocked      Code = 16

	// CodeFunctionFailed marks an adapter function that returned a failed result.
	CodeFunctionFailed Code = 17
)

// Error carries a stable code next to the human-readable message shown to the caller.
type Error struct {
	Code    Code
	Message string
	Cause   error
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

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if typed, ok := As(err); ok {
		return int(typed.Code)
	}
	return int(CodeInternal)
}

// TypeName is the snake_case label rendered in error envelopes and metrics.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "upstream_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodePrecondition:
		return "precondition_failed"
	case CodeHost:
		return "host_error"
	case CodeBlocked:
		return "function_blocked"
	case CodeFunctionFailed:
		return "function_failed"
	default:
		return "internal_error"
	}
}
