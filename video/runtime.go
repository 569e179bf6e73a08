package video

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-frameloop/internal/goroutineid"
	"github.com/joeycumines/go-frameloop/internal/panics"
	"github.com/joeycumines/logiface"
)

// Runtime owns the render goroutine, and serializes the video lifecycle
// against it. See the package documentation for the state machine.
//
// Start, Stop, Restart and Shutdown are meant to be called from a single
// controlling goroutine. They block, and return [ErrReentrant] if called from
// the render goroutine, where StopAsync must be used instead.
type Runtime struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	platform  Platform
	frame     FrameFunc
	logger    *logiface.Logger[logiface.Event]
	onFailure func(err error)

	// done is closed once the render goroutine has exited
	done chan struct{}

	// owner identifies the render goroutine
	owner goroutineid.Owner

	frames atomic.Uint64

	// exit requests that the frame loop return, checked between frames
	exit atomic.Bool

	// changed is closed and replaced on every change to the fields below
	changed chan struct{}

	// renderer is the handoff from Start (vary on main), then the active
	// renderer while the frame loop runs
	renderer Renderer

	// err is the pending session failure, consumed by the next caller
	err error

	// stopped are StopAsync callbacks for the current session
	stopped []func(err error)

	cfg Config

	// prevCfg is restored if the session starting with cfg fails to run
	prevCfg Config

	mu         sync.Mutex
	state      State
	startReq   bool
	quitReq    bool
	varyOnMain bool
}

// New creates a runtime, and starts its render goroutine, which idles until
// [Runtime.Start].
func New(platform Platform, frame FrameFunc, opts ...Option) (*Runtime, error) {
	if platform == nil {
		return nil, errors.New("video: nil platform")
	}
	if frame == nil {
		return nil, errors.New("video: nil frame func")
	}

	cfg, err := resolveRuntimeOptions(opts)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		platform:   platform,
		frame:      frame,
		logger:     cfg.logger,
		onFailure:  cfg.onFailure,
		varyOnMain: cfg.varyOnMain,
		done:       make(chan struct{}),
		changed:    make(chan struct{}),
	}

	ready := make(chan struct{})
	go r.run(ready)
	<-ready

	return r, nil
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Config returns the configuration of the current session, or of the most
// recent session that ran. A session that failed to start leaves it unchanged.
func (r *Runtime) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// ScreenSize returns the render surface size of [Runtime.Config].
func (r *Runtime) ScreenSize() Size {
	return r.Config().ScreenSize()
}

// Frames returns the number of frames presented, across all sessions.
func (r *Runtime) Frames() uint64 {
	return r.frames.Load()
}

// Done returns a channel that is closed once the render goroutine has exited.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Renderer returns the active renderer. It only succeeds on the render
// goroutine, while a session is running.
func (r *Runtime) Renderer() (Renderer, bool) {
	if !r.owner.IsCurrent() {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer == nil || (r.state != StateRunning && r.state != StateStopping) {
		return nil, false
	}
	return r.renderer, true
}

// Start initializes a session with cfg, and blocks until the render goroutine
// is executing frames, or the session failed to start.
//
// The runtime must be idle, otherwise [ErrAlreadyRunning] is returned, and
// the configuration is left unchanged. If a previous session failed, and the
// failure was not yet observed, it is returned instead, and the runtime
// remains idle.
//
// If ctx is canceled while waiting for the render goroutine, ctx.Err() is
// returned, and the session continues starting.
func (r *Runtime) Start(ctx context.Context, cfg Config) error {
	if r.owner.IsCurrent() {
		return ErrReentrant
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := r.checkStartLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.prevCfg = r.cfg
	r.cfg = cfg
	r.setStateLocked(StateStarting)
	varyOnMain := r.varyOnMain
	r.mu.Unlock()

	r.logger.Info().
		Str(`mode`, cfg.Mode.String()).
		Str(`size`, cfg.ScreenSize().String()).
		Bool(`vary_on_main`, varyOnMain).
		Log(`video session starting`)

	var renderer Renderer
	err := panics.CallErr(func() error { return r.platform.InitMain(cfg) })
	if err == nil && varyOnMain {
		renderer, err = r.initVary(cfg)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInitFailed, err)
		r.failed(err)
		r.mu.Lock()
		r.cfg = r.prevCfg
		r.setStateLocked(StateIdle)
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderer = renderer
	r.startReq = true
	r.notifyLocked()

	if err := r.waitLocked(ctx, func() bool { return r.state != StateStarting }); err != nil {
		return err
	}
	switch r.state {
	case StateIdle:
		// failed to start, or failed before we woke
		return r.takeErrLocked()
	case StateRetired:
		if err := r.takeErrLocked(); err != nil {
			return err
		}
		// the failure went to a StopAsync callback
		return ErrRenderExited
	}
	return nil
}

// Stop asks the frame loop to exit after the current frame, and blocks until
// the renderer has been shut down, and the runtime is idle. It returns the
// session's failure, if any, including failures of [Renderer.Shutdown].
//
// Stop returns [ErrNotRunning] unless a session is running or stopping, and
// any pending session failure otherwise. Concurrent calls join the same
// stop. If ctx is canceled, ctx.Err() is returned, and the stop continues.
func (r *Runtime) Stop(ctx context.Context) error {
	if r.owner.IsCurrent() {
		return ErrReentrant
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRunning:
		r.requestStopLocked()
	case StateStopping:
	case StateIdle:
		if err := r.takeErrLocked(); err != nil {
			return err
		}
		return ErrNotRunning
	case StateRetired:
		if err := r.takeErrLocked(); err != nil {
			return err
		}
		return ErrShutdown
	default:
		return ErrNotRunning
	}

	if err := r.waitLocked(ctx, func() bool { return !r.state.Active() }); err != nil {
		return err
	}

	return r.takeErrLocked()
}

// StopAsync asks the frame loop to exit after the current frame, without
// waiting. It may be called from any goroutine, including from within the
// frame callback.
//
// If non-nil, onDone is called once teardown completes, with the session's
// failure, which is consumed. It is called on the render goroutine, and must
// not block on the runtime's lifecycle methods.
//
// StopAsync returns [ErrNotRunning] unless a session is running or stopping.
func (r *Runtime) StopAsync(onDone func(err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRunning:
		r.requestStopLocked()
	case StateStopping:
	case StateRetired:
		return ErrShutdown
	default:
		return ErrNotRunning
	}

	if onDone != nil {
		r.stopped = append(r.stopped, onDone)
	}

	return nil
}

// Restart stops any running session, then starts a new one with cfg, e.g. to
// toggle fullscreen. A failure of the stopped session is returned without
// starting.
func (r *Runtime) Restart(ctx context.Context, cfg Config) error {
	if err := r.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return r.Start(ctx, cfg)
}

// Shutdown stops any running session, then permanently retires the render
// goroutine, blocking until it exits. It returns any pending session failure.
//
// Calls after the first successful call return [ErrShutdown]. If ctx is
// canceled before the render goroutine was asked to exit, Shutdown may be
// retried.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.owner.IsCurrent() {
		return ErrReentrant
	}

	r.mu.Lock()
	if r.quitReq || r.state == StateRetired {
		err := r.takeErrLocked()
		r.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrShutdown
	}
	// a starting session must settle before it can be stopped
	if err := r.waitLocked(ctx, func() bool { return r.state != StateStarting }); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.quitReq {
		r.mu.Unlock()
		return ErrShutdown
	}
	if r.state == StateRunning {
		r.requestStopLocked()
	}
	r.quitReq = true
	r.notifyLocked()
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takeErrLocked()
}

// run is the render goroutine. It is locked to its OS thread for its
// lifetime, as platform video APIs commonly have thread affinity.
func (r *Runtime) run(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.owner.Claim()
	defer r.owner.Release()

	defer close(r.done)

	var clean bool
	defer func() {
		if clean {
			return
		}
		r.mu.Lock()
		retired := r.state == StateRetired
		r.mu.Unlock()
		if !retired {
			// runtime.Goexit from a stop callback, after the session ended
			r.abandon(nil, true)
		}
	}()

	close(ready)
	r.logger.Debug().Log(`render goroutine started`)

	for {
		r.mu.Lock()
		for !r.startReq && !r.quitReq {
			ch := r.changed
			r.mu.Unlock()
			<-ch
			r.mu.Lock()
		}
		if !r.startReq {
			r.setStateLocked(StateRetired)
			r.mu.Unlock()
			clean = true
			r.logger.Debug().Log(`render goroutine retired`)
			return
		}
		r.startReq = false
		cfg := r.cfg
		renderer := r.renderer
		r.mu.Unlock()

		r.session(cfg, renderer)
	}
}

// session runs a single session on the render goroutine, from InitVary (if
// not already done by Start) through to Renderer.Shutdown.
func (r *Runtime) session(cfg Config, renderer Renderer) {
	var (
		err      error
		started  bool
		finished bool
	)
	defer func() {
		if !finished {
			// runtime.Goexit from a callback
			r.abandon(renderer, started)
		}
	}()

	if renderer == nil {
		renderer, err = r.initVary(cfg)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrInitFailed, err)
		}
	}

	if err == nil {
		r.mu.Lock()
		r.renderer = renderer
		r.setStateLocked(StateRunning)
		r.mu.Unlock()
		started = true

		r.logger.Info().
			Str(`mode`, cfg.Mode.String()).
			Str(`size`, cfg.ScreenSize().String()).
			Log(`video session running`)

		err = r.frameLoop(renderer)
	}

	if err != nil {
		r.failed(err)
	}

	if renderer != nil {
		active := renderer
		renderer = nil
		err = errors.Join(err, r.shutdownRenderer(active))
	}

	r.mu.Lock()
	r.renderer = nil
	r.exit.Store(false)
	callbacks := r.stopped
	r.stopped = nil
	if len(callbacks) == 0 {
		r.err = err
	} else {
		r.err = nil
	}
	if !started {
		r.cfg = r.prevCfg
	}
	r.setStateLocked(StateIdle)
	r.mu.Unlock()
	finished = true

	r.logger.Info().
		Uint64(`frames`, r.frames.Load()).
		Bool(`failed`, err != nil).
		Log(`video session stopped`)

	r.notifyStopped(callbacks, err)
}

// abandon retires the runtime after the render goroutine was exited by
// runtime.Goexit, shutting down renderer, if non-nil. The failure is
// reported like any other, and passed to pending StopAsync callbacks.
func (r *Runtime) abandon(renderer Renderer, started bool) {
	r.logger.Crit().
		Err(ErrRenderExited).
		Log(`render goroutine exited`)

	err := ErrRenderExited
	r.failed(err)

	if renderer != nil {
		err = errors.Join(err, r.shutdownRenderer(renderer))
	}

	r.mu.Lock()
	r.renderer = nil
	callbacks := r.stopped
	r.stopped = nil
	if len(callbacks) == 0 {
		r.err = errors.Join(r.err, err)
	}
	if !started {
		r.cfg = r.prevCfg
	}
	r.setStateLocked(StateRetired)
	r.mu.Unlock()

	r.notifyStopped(callbacks, err)
}

func (r *Runtime) shutdownRenderer(renderer Renderer) error {
	err := panics.CallErr(renderer.Shutdown)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("video: renderer shutdown: %w", err)
	r.logger.Err().
		Err(err).
		Log(`renderer shutdown failed`)
	return err
}

func (r *Runtime) notifyStopped(callbacks []func(err error), err error) {
	for _, fn := range callbacks {
		if perr := panics.Call(func() { fn(err) }); perr != nil {
			r.logger.Err().
				Err(perr).
				Log(`stop callback panicked`)
		}
	}
}

// frameLoop executes frames until asked to exit, or a frame fails. The exit
// request is only observed between frames.
func (r *Runtime) frameLoop(renderer Renderer) error {
	for !r.exit.Load() {
		if err := panics.CallErr(func() error { return r.frame(renderer) }); err != nil {
			return fmt.Errorf("%w: %w", ErrFrameFailed, err)
		}
		if err := panics.CallErr(renderer.Present); err != nil {
			return fmt.Errorf("%w: %w", ErrPresentFailed, err)
		}
		r.frames.Add(1)
	}
	return nil
}

func (r *Runtime) initVary(cfg Config) (renderer Renderer, err error) {
	err = panics.CallErr(func() error {
		renderer, err = r.platform.InitVary(cfg)
		return err
	})
	if err == nil && renderer == nil {
		err = ErrNilRenderer
	}
	if err != nil {
		return nil, err
	}
	return renderer, nil
}

// failed logs a session failure, and invokes the failure handler.
func (r *Runtime) failed(err error) {
	r.logger.Err().
		Err(err).
		Log(`video session failed`)
	if r.onFailure != nil {
		if perr := panics.Call(func() { r.onFailure(err) }); perr != nil {
			r.logger.Crit().
				Err(perr).
				Log(`failure handler panicked`)
		}
	}
}

func (r *Runtime) checkStartLocked() error {
	switch {
	case r.state == StateRetired || r.quitReq:
		return ErrShutdown
	case r.state != StateIdle:
		return ErrAlreadyRunning
	}
	return r.takeErrLocked()
}

func (r *Runtime) requestStopLocked() {
	r.exit.Store(true)
	r.setStateLocked(StateStopping)
	r.logger.Debug().Log(`video session stopping`)
}

func (r *Runtime) takeErrLocked() error {
	err := r.err
	r.err = nil
	return err
}

func (r *Runtime) setStateLocked(state State) {
	r.state = state
	r.notifyLocked()
}

// notifyLocked wakes every waiter, see waitLocked.
func (r *Runtime) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// waitLocked blocks until cond returns true, releasing mu while waiting.
// It is called, and returns, with mu held.
func (r *Runtime) waitLocked(ctx context.Context, cond func() bool) error {
	for !cond() {
		ch := r.changed
		r.mu.Unlock()
		select {
		case <-ch:
			r.mu.Lock()
		case <-ctx.Done():
			r.mu.Lock()
			return ctx.Err()
		}
	}
	return nil
}
