// Package hints labels errors that signal a skipped step rather than a failure.
//
// A retention pass with nothing old enough to delete, or a run that finds another
// instance already holding the backup directory lock, reports a hint. Callers log
// hints at INFO and carry on, while every other error aborts the run.
package hints

import "errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a string.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Wrap promotes an existing error to a hint. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint reports whether any error in the chain is a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is reports whether err is a hint that also matches target.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
