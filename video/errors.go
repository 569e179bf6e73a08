package video

import (
	"errors"

	"github.com/joeycumines/go-frameloop/internal/panics"
)

// Standard errors.
var (
	// ErrAlreadyRunning is returned by Start unless the runtime is idle.
	ErrAlreadyRunning = errors.New("video: runtime is already running")

	// ErrNotRunning is returned by Stop and StopAsync unless the runtime is running.
	ErrNotRunning = errors.New("video: runtime is not running")

	// ErrShutdown is returned once the render goroutine has been retired.
	ErrShutdown = errors.New("video: runtime has been shut down")

	// ErrReentrant is returned when a blocking lifecycle method is called
	// from the render goroutine, which would otherwise deadlock.
	ErrReentrant = errors.New("video: cannot block on the render goroutine")

	// ErrInitFailed wraps failures of Platform initialization.
	ErrInitFailed = errors.New("video: initialization failed")

	// ErrFrameFailed wraps failures of the frame callback.
	ErrFrameFailed = errors.New("video: frame failed")

	// ErrPresentFailed wraps failures of Renderer.Present.
	ErrPresentFailed = errors.New("video: present failed")

	// ErrNilRenderer is returned when InitVary returns neither a renderer nor an error.
	ErrNilRenderer = errors.New("video: platform returned a nil renderer")

	// ErrRenderExited indicates the render goroutine exited abnormally, e.g.
	// via runtime.Goexit from within a callback.
	ErrRenderExited = errors.New("video: render goroutine exited unexpectedly")

	// ErrInvalidConfig is returned for configurations that cannot be started.
	ErrInvalidConfig = errors.New("video: invalid config")
)

// PanicError wraps a panic recovered from a platform or frame callback.
type PanicError = panics.Error
