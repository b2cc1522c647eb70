package adapter

import (
	"encoding/json"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

// Result is the uniform return value of every adapter function.
// Failures always carry a human-readable string in Data and IsError=true.
type Result struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	IsError bool `json:"isError,omitempty"`
}

func OK(data any) Result {
	return Result{Success: true, Data: data}
}

func Fail(message string) Result {
	return Result{Success: false, Data: message, IsError: true}
}

// FromError maps any error onto a failed Result. Host errors already carry the
// submitter's own message and are passed through untouched.
func FromError(err error) Result {
	if err == nil {
		return Fail("unknown error")
	}
	if typed, ok := clierr.As(err); ok && typed.Code == clierr.CodeHost && typed.Cause == nil {
		return Fail(typed.Message)
	}
	return Fail(err.Error())
}

// Message returns Data as a string, rendering structured payloads as JSON.
func (r Result) Message() string {
	switch v := r.Data.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(buf)
	}
}
