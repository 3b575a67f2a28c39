package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents an error recovered from a panic
type PanicError struct {
	Value      interface{} // The panic value
	Stacktrace string      // Full stack trace
}

// Error implements the error interface
func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// RecoverPanic recovers from a panic and returns it as an error with stack trace
// Returns nil if no panic occurred. Must be called directly by a deferred
// function: recover() only stops a panic when invoked at that exact call
// depth, so wrapping this in another helper (including a deferred closure
// that merely calls RecoverPanic) defeats it.
func RecoverPanic() error {
	if r := recover(); r != nil {
		return NewPanicError(r)
	}
	return nil
}

// NewPanicError builds a PanicError from a value already obtained by a
// caller's own direct recover() call, for callers (like the HTTP
// panic-recovery middleware) that need to do something with the recovered
// value besides returning it as an error.
func NewPanicError(r interface{}) *PanicError {
	return &PanicError{
		Value:      r,
		Stacktrace: string(debug.Stack()),
	}
}

// FormatPanicForLog returns a formatted string suitable for logging
func FormatPanicForLog(panicErr *PanicError) string {
	return fmt.Sprintf("PANIC: %v\n\nStack Trace:\n%s", panicErr.Value, panicErr.Stacktrace)
}
