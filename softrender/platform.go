package softrender

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/google/renameio/v2"
	"github.com/joeycumines/go-frameloop/video"
	"github.com/joeycumines/logiface"
)

var (
	// ErrUnsupportedMode is returned by InitMain for fullscreen sizes the
	// display does not support, see WithModes.
	ErrUnsupportedMode = errors.New("softrender: unsupported display mode")

	// ErrClosed is returned by Renderer methods after Shutdown.
	ErrClosed = errors.New("softrender: renderer is shut down")

	errUnknownRenderer = errors.New("softrender: not a softrender renderer")
)

// Platform implements [video.Platform].
type Platform struct {
	logger      *logiface.Logger[logiface.Event]
	capturePath string
	modes       []video.Size
	interval    time.Duration

	display  video.Size
	sessions int
	mu       sync.Mutex
}

var _ video.Platform = (*Platform)(nil)

// New creates a headless platform.
func New(opts ...Option) (*Platform, error) {
	cfg, err := resolvePlatformOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Platform{
		logger:      cfg.logger,
		capturePath: cfg.capturePath,
		modes:       cfg.modes,
		interval:    cfg.interval,
	}, nil
}

// InitMain validates the mode, and "switches" the display to it.
func (p *Platform) InitMain(cfg video.Config) error {
	size := cfg.ScreenSize()
	if cfg.Mode == video.ModeFullscreen && len(p.modes) != 0 && !slices.Contains(p.modes, size) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, size)
	}

	p.mu.Lock()
	p.display = size
	p.sessions++
	p.mu.Unlock()

	p.logger.Debug().
		Str(`mode`, cfg.Mode.String()).
		Str(`size`, size.String()).
		Log(`display configured`)

	return nil
}

// InitVary allocates a drawing context of the screen size.
func (p *Platform) InitVary(cfg video.Config) (video.Renderer, error) {
	size := cfg.ScreenSize()
	if size.Empty() {
		return nil, fmt.Errorf("softrender: invalid screen size: %s", size)
	}

	r := &Renderer{
		ctx:         gg.NewContext(size.Width, size.Height),
		logger:      p.logger,
		capturePath: p.capturePath,
		size:        size,
	}
	if p.interval > 0 {
		r.ticker = time.NewTicker(p.interval)
	}

	return r, nil
}

// Display returns the size most recently configured by InitMain.
func (p *Platform) Display() video.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.display
}

// Sessions returns the number of successful InitMain calls.
func (p *Platform) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

// Renderer implements [video.Renderer], and is only safe to use from the
// render goroutine.
type Renderer struct {
	ctx         *gg.Context
	ticker      *time.Ticker
	logger      *logiface.Logger[logiface.Event]
	capturePath string
	size        video.Size
	frames      uint64
	closed      bool
}

var _ video.Renderer = (*Renderer)(nil)

// Context returns the drawing context for the current frame.
func (r *Renderer) Context() *gg.Context { return r.ctx }

// Size returns the size of the drawing context.
func (r *Renderer) Size() video.Size { return r.size }

// Frames returns the number of frames presented by this renderer.
func (r *Renderer) Frames() uint64 { return r.frames }

// Present completes the frame, then waits for the next frame interval.
func (r *Renderer) Present() error {
	if r.closed {
		return ErrClosed
	}
	r.frames++
	if r.ticker != nil {
		<-r.ticker.C
	}
	return nil
}

// Shutdown captures the last frame, if configured, and releases the context.
func (r *Renderer) Shutdown() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	if r.ticker != nil {
		r.ticker.Stop()
	}

	var err error
	if r.capturePath != `` && r.frames != 0 {
		err = r.capture()
	}

	return errors.Join(err, r.ctx.Close())
}

func (r *Renderer) capture() error {
	var buf bytes.Buffer
	if err := r.ctx.EncodePNG(&buf); err != nil {
		return fmt.Errorf("softrender: encode capture: %w", err)
	}
	if err := renameio.WriteFile(r.capturePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("softrender: write capture: %w", err)
	}
	r.logger.Info().
		Str(`path`, r.capturePath).
		Uint64(`frames`, r.frames).
		Log(`frame captured`)
	return nil
}
