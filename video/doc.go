// Package video runs a per-frame callback on a dedicated render goroutine,
// keeping platform video (re)initialization correctly ordered across
// start/stop cycles, e.g. when toggling between windowed and fullscreen.
//
// # Lifecycle
//
// A [Runtime] creates its render goroutine exactly once, in [New], locked to
// an OS thread. The goroutine alternates between waiting to be started, and
// executing frames, until [Runtime.Shutdown] retires it:
//
//	StateIdle     → StateStarting  [Start]
//	StateStarting → StateRunning   [render goroutine enters its frame loop]
//	StateStarting → StateIdle      [initialization failed]
//	StateRunning  → StateStopping  [Stop, StopAsync, Shutdown]
//	StateRunning  → StateIdle      [frame or present failed]
//	StateStopping → StateIdle      [render goroutine left its frame loop]
//	StateIdle     → StateRetired   [Shutdown]
//
// Transitions are requested by the controlling goroutine, and acknowledged by
// the render goroutine. The state is guarded by a mutex, and every change is
// broadcast, so waiters never poll.
//
// # Initialization
//
// Platform setup is split into two extension points, see [Platform].
// InitMain always runs on the goroutine calling [Runtime.Start]. InitVary
// constructs the [Renderer], either on the calling goroutine or on the render
// goroutine, as selected once by [WithVaryOnMain].
//
// # Failures
//
// Any error or panic from initialization, the frame callback, or
// [Renderer.Present], ends the session. The failure handler (see
// [WithFailureHandler]) runs before the renderer is shut down, and the error
// is returned by the next call to [Runtime.Start], [Runtime.Stop] or
// [Runtime.Shutdown], or passed to the [Runtime.StopAsync] callback.
package video
