package hints_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/hints"
)

var (
	errNothingToPurge = hints.New("nothing to purge")
	errLockHeld       = errors.New("lock held by another process")
)

func TestIsHint(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"Nil", nil, false},
		{"PlainError", errLockHeld, false},
		{"NewHint", errNothingToPurge, true},
		{"WrappedPlainError", hints.Wrap(errLockHeld), true},
		{"HintBehindFmtWrap", fmt.Errorf("retention: %w", errNothingToPurge), true},
		{"PlainBehindFmtWrap", fmt.Errorf("lock: %w", errLockHeld), false},
		{"DoubleWrapped", fmt.Errorf("run: %w", fmt.Errorf("retention: %w", errNothingToPurge)), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hints.IsHint(tc.err); got != tc.expected {
				t.Errorf("IsHint() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	if hints.Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}

	wrapped := hints.Wrap(errLockHeld)
	if wrapped.Error() != errLockHeld.Error() {
		t.Errorf("expected message %q, got %q", errLockHeld.Error(), wrapped.Error())
	}
	if !errors.Is(wrapped, errLockHeld) {
		t.Error("errors.Is should find the underlying error in a hint")
	}
	if errors.Unwrap(wrapped) != errLockHeld {
		t.Error("errors.Unwrap should return the original error")
	}
}

func TestIsTarget(t *testing.T) {
	wrapped := hints.Wrap(errLockHeld)
	if !hints.Is(wrapped, errLockHeld) {
		t.Error("Is(hint, target) should be true")
	}
	if hints.Is(errLockHeld, errLockHeld) {
		t.Error("Is should be false for errors that are not hints")
	}
	if hints.Is(wrapped, errNothingToPurge) {
		t.Error("Is should be false for an unrelated target")
	}
}
