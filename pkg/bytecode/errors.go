package bytecode

import (
	"errors"
	"fmt"
)

// ErrAssertion is wrapped by the error raised for a false "утв" condition.
var ErrAssertion = errors.New("утверждение ложно")

// RuntimeError is an error raised while executing a program. Line is the
// source line of the failing instruction.
type RuntimeError struct {
	Line    int
	Message string
	Err     error // underlying cause, if any
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("строка %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsRuntimeError reports whether err is, or wraps, a RuntimeError.
func IsRuntimeError(err error) (*RuntimeError, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func runtimeErrorf(line int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// wrapError attaches a line to err unless it already is a RuntimeError.
func wrapError(line int, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := IsRuntimeError(err); ok {
		return err
	}
	return &RuntimeError{Line: line, Message: err.Error(), Err: err}
}
