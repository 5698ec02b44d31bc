package scheduler

import "fmt"

// UsageError reports a programming error in how the scheduler API was
// called: an invalid task id, a double-cancel, registering PriorityKeep
// outside a running callback, or naming a prerequisite that never existed.
// Per spec.md §7, these are not recoverable conditions a caller is expected
// to handle; the scheduler panics with a UsageError rather than returning
// one, mirroring the teacher's typed-error shape
// (joeycumines-go-utilpkg/eventloop/errors.go's TypeError/RangeError: a
// Cause plus Unwrap), but surfaced via panic instead of a returned error
// since there is no sane fallback value for e.g. Cancel on a bad id.
type UsageError struct {
	Op      string
	Message string
	Cause   error
}

// Error implements error.
func (e *UsageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("scheduler: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("scheduler: %s", e.Message)
}

// Unwrap exposes the cause chain, for errors.Is/errors.As.
func (e *UsageError) Unwrap() error {
	return e.Cause
}

func usageErrorf(op, format string, args ...any) *UsageError {
	return &UsageError{Op: op, Message: fmt.Sprintf(format, args...)}
}
