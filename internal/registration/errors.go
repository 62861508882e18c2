// internal/registration/errors.go
package registration

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSlots is logged when the form offers no dates. The session still ends Done.
var ErrNoSlots = errors.New("no slots available")

// ErrSubmissionTimeout is the reason recorded for a slot whose confirmation never appeared.
var ErrSubmissionTimeout = errors.New("submission confirmation timed out")

// ErrSubSlotUnavailable is the reason recorded when no sub-slot satisfying the policy showed up.
var ErrSubSlotUnavailable = errors.New("sub-slot unavailable")

// NavigationError means the form never became ready within the navigation bound.
type NavigationError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("form at %s not ready within %s: %v", e.URL, e.Timeout, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// FatalSessionError is any unrecovered failure outside the per-slot recovery paths.
type FatalSessionError struct {
	State State
	Slot  string
	Err   error
}

func (e *FatalSessionError) Error() string {
	if e.Slot != "" {
		return fmt.Sprintf("fatal session error in %s (slot %s): %v", e.State, e.Slot, e.Err)
	}
	return fmt.Sprintf("fatal session error in %s: %v", e.State, e.Err)
}

func (e *FatalSessionError) Unwrap() error { return e.Err }
