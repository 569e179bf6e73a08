// Command framedemo drives a headless video runtime through repeated
// windowed/fullscreen restarts, on a timer, logging each transition.
//
//	framedemo -config video.toml -cycles 6 -toggle 250ms -capture last.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gogpu/gg"
	"github.com/joeycumines/go-frameloop/schedule"
	"github.com/joeycumines/go-frameloop/softrender"
	"github.com/joeycumines/go-frameloop/video"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
)

func init() {
	// InitMain runs on the goroutine calling Start, keep it on the main thread
	runtime.LockOSThread()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	configPath string
	capture    string
	level      levelFlag
	cycles     int
	toggle     time.Duration
	fps        float64
	varyOnMain bool
}

func parseFlags(args []string, output io.Writer) (*flags, error) {
	f := flags{level: levelFlag(logiface.LevelInformational)}
	fs := flag.NewFlagSet(`framedemo`, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.configPath, `config`, ``, `path to a TOML video config`)
	fs.StringVar(&f.capture, `capture`, ``, `write the last frame of each session to this PNG`)
	fs.Var(&f.level, `log-level`, `log level, e.g. debug or info`)
	fs.IntVar(&f.cycles, `cycles`, 4, `number of mode toggles before exiting`)
	fs.DurationVar(&f.toggle, `toggle`, 500*time.Millisecond, `interval between mode toggles`)
	fs.Float64Var(&f.fps, `fps`, 60, `frame rate, 0 for unpaced`)
	fs.BoolVar(&f.varyOnMain, `vary-on-main`, false, `construct the renderer on the main goroutine`)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.cycles < 0 {
		return nil, fmt.Errorf("invalid cycles: %d", f.cycles)
	}
	if f.toggle <= 0 {
		return nil, fmt.Errorf("invalid toggle interval: %s", f.toggle)
	}
	return &f, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(logiface.Level(f.level)),
	).Logger()

	if err := runDemo(ctx, f, logger, stderr); err != nil {
		logger.Err().
			Err(err).
			Log(`framedemo failed`)
		return 1
	}
	return 0
}

func runDemo(ctx context.Context, f *flags, logger *logiface.Logger[logiface.Event], stderr io.Writer) error {
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug().Logf(format, args...)
	}))
	if err != nil {
		logger.Warning().
			Err(err).
			Log(`failed to set GOMAXPROCS`)
	}
	if undo != nil {
		defer undo()
	}

	gg.SetLogger(slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	defer gg.SetLogger(nil)

	cfg := video.DefaultConfig()
	if f.configPath != `` {
		if cfg, err = video.LoadConfig(f.configPath); err != nil {
			return err
		}
	}

	platform, err := softrender.New(
		softrender.WithLogger(logger),
		softrender.WithFrameRate(f.fps),
		softrender.WithCapturePath(f.capture),
	)
	if err != nil {
		return err
	}

	rt, err := video.New(platform, softrender.PatternFrame,
		video.WithLogger(logger),
		video.WithVaryOnMain(f.varyOnMain),
		video.WithFailureHandler(func(err error) {
			logger.Warning().
				Err(err).
				Log(`session failed, tearing down`)
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Shutdown(shutdownCtx); err != nil && !errors.Is(err, video.ErrShutdown) {
			logger.Err().
				Err(err).
				Log(`video shutdown failed`)
		}
	}()

	sched, err := schedule.New(schedule.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sched.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// exits early if either background goroutine dies
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-rt.Done():
			return video.ErrRenderExited
		case <-sched.Done():
			return schedule.ErrClosed
		}
	})

	toggles := make(chan struct{}, 1)
	if _, err := sched.SetInterval(func() {
		select {
		case toggles <- struct{}{}:
		default:
		}
	}, f.toggle); err != nil {
		return err
	}

	if _, err := sched.SetInterval(func() {
		logger.Info().
			Str(`state`, rt.State().String()).
			Uint64(`frames`, rt.Frames()).
			Log(`stats`)
	}, time.Second); err != nil {
		return err
	}

	err = control(gctx, rt, cfg, f.cycles, toggles, logger)
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if errors.Is(err, context.Canceled) {
		// interrupted
		return nil
	}
	return err
}

// control owns the runtime lifecycle, toggling the screen mode on each tick.
func control(ctx context.Context, rt *video.Runtime, cfg video.Config, cycles int, toggles <-chan struct{}, logger *logiface.Logger[logiface.Event]) error {
	if err := rt.Start(ctx, cfg); err != nil {
		return err
	}

	windowed := cfg.Mode
	if windowed.Fullscreen() {
		windowed = video.ModeWindowed
	}
	fullscreen := video.ModeFullscreen
	if cfg.Mode.Fullscreen() {
		fullscreen = cfg.Mode
	}

	for i := 0; i < cycles; i++ {
		select {
		case <-ctx.Done():
			return stopRuntime(rt)
		case <-toggles:
		}

		if cfg.Mode.Fullscreen() {
			cfg.Mode = windowed
		} else {
			cfg.Mode = fullscreen
		}

		start := time.Now()
		if err := rt.Restart(ctx, cfg); err != nil {
			return err
		}
		logger.Info().
			Int(`cycle`, i+1).
			Str(`mode`, cfg.Mode.String()).
			Str(`size`, rt.ScreenSize().String()).
			Dur(`took`, time.Since(start)).
			Log(`video restarted`)
	}

	return stopRuntime(rt)
}

func stopRuntime(rt *video.Runtime) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Stop(ctx); err != nil && !errors.Is(err, video.ErrNotRunning) {
		return err
	}
	return nil
}

// levelFlag implements flag.Value for logiface levels.
type levelFlag logiface.Level

func (l *levelFlag) String() string {
	return logiface.Level(*l).String()
}

func (l *levelFlag) Set(s string) error {
	for level := logiface.LevelEmergency; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			*l = levelFlag(level)
			return nil
		}
	}
	switch s {
	case `error`:
		*l = levelFlag(logiface.LevelError)
	case `warn`:
		*l = levelFlag(logiface.LevelWarning)
	case `disabled`, `off`:
		*l = levelFlag(logiface.LevelDisabled)
	default:
		return fmt.Errorf("unknown log level: %q", s)
	}
	return nil
}
