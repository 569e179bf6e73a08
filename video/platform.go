package video

// Renderer is the per-session rendering surface, constructed by
// [Platform.InitVary]. Present and Shutdown are only ever called on the
// render goroutine.
type Renderer interface {
	// Present finishes the current frame, e.g. swapping buffers, and may
	// block to pace the frame rate.
	Present() error

	// Shutdown releases the renderer. It is called exactly once per
	// session, after the frame loop has exited, including after failures.
	Shutdown() error
}

// FrameFunc renders a single frame. It runs on the render goroutine, with
// the session's renderer. Returning an error ends the session.
type FrameFunc func(r Renderer) error

// Platform performs per-session video initialization.
//
// Start calls InitMain, then InitVary. Both receive the configuration passed
// to Start. If either fails, the session does not start.
type Platform interface {
	// InitMain performs setup that must happen on the goroutine calling
	// Start, e.g. display mode changes, or window creation.
	InitMain(cfg Config) error

	// InitVary constructs the renderer. It is called on the goroutine calling
	// Start if the runtime was created with WithVaryOnMain(true), otherwise
	// on the render goroutine.
	InitVary(cfg Config) (Renderer, error)
}
