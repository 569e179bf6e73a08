package schedule

import (
	"errors"

	"github.com/joeycumines/go-frameloop/internal/panics"
)

// Standard errors.
var (
	// ErrClosed is returned when operations are attempted on a closed Scheduler.
	ErrClosed = errors.New("schedule: scheduler is closed")

	// ErrNilCallback is returned when a task is scheduled without a callback.
	ErrNilCallback = errors.New("schedule: nil callback")

	// ErrInvalidInterval is returned by SetInterval for non-positive intervals.
	ErrInvalidInterval = errors.New("schedule: interval must be positive")
)

// PanicError wraps a panic recovered from a task callback.
type PanicError = panics.Error
