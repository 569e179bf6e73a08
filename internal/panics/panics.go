// Package panics converts panics escaping user callbacks into errors.
package panics

import (
	"fmt"
	"runtime/debug"
)

// Error wraps a recovered panic value, along with the stack at the point of
// recovery.
type Error struct {
	Value any
	Stack []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, enabling [errors.Is] and
// [errors.As] through the panic.
func (e *Error) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Call runs fn, returning a *Error if it panicked.
func Call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

// CallErr runs fn, returning its error, or a *Error if it panicked.
func CallErr(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
