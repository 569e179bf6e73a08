package schedule

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-frameloop/internal/goroutineid"
	"github.com/joeycumines/logiface"
)

// Scheduler owns a [Queue] and the single background goroutine that fires
// its tasks. The goroutine is started by [New], and runs until [Scheduler.Close].
//
// All methods are safe to call from any goroutine, including from within
// task callbacks.
type Scheduler struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	queue  *Queue
	signal *wakeSignal
	clock  Clock
	logger *logiface.Logger[logiface.Event]

	// done is closed once the scheduler goroutine has exited
	done chan struct{}

	// owner identifies the scheduler goroutine, for reentrant Close
	owner goroutineid.Owner

	closeOnce sync.Once
	closing   atomic.Bool
}

// New creates a scheduler, and starts its goroutine.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	queue, err := newQueue(cfg)
	if err != nil {
		return nil, err
	}

	signal, err := newWakeSignal()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		queue:  queue,
		signal: signal,
		clock:  cfg.clock,
		logger: cfg.logger,
		done:   make(chan struct{}),
	}
	queue.notify = signal.Signal

	ready := make(chan struct{})
	go s.run(ready)
	<-ready

	return s, nil
}

// run is the scheduler goroutine.
func (s *Scheduler) run(ready chan<- struct{}) {
	s.owner.Claim()
	defer s.owner.Release()

	defer close(s.done)
	defer func() {
		n := s.queue.Close()
		_ = s.signal.Close()
		s.logger.Debug().
			Int(`dropped`, n).
			Log(`scheduler stopped`)
	}()

	close(ready)
	s.logger.Debug().Log(`scheduler started`)

	for !s.closing.Load() {
		next, ok := s.queue.Poll(s.clock.Now())
		if s.closing.Load() {
			return
		}

		timeout := time.Duration(-1)
		if ok {
			timeout = next.Sub(s.clock.Now())
			if timeout < 0 {
				timeout = 0
			}
		}

		if err := s.signal.Wait(timeout); err != nil {
			s.logger.Crit().
				Err(err).
				Log(`scheduler wait failed, terminating`)
			s.closing.Store(true)
			return
		}
	}
}

// SetTimeout schedules fn to run once, after delay. Negative delays are
// treated as zero. The returned task may be used to cancel.
func (s *Scheduler) SetTimeout(fn func(), delay time.Duration) (*Task, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if delay < 0 {
		delay = 0
	}
	t := s.queue.Add(fn, s.clock.Now().Add(delay), 0)
	if t == nil {
		return nil, ErrClosed
	}
	s.logger.Trace().
		Uint64(`task`, t.id).
		Dur(`delay`, delay).
		Log(`timeout scheduled`)
	return t, nil
}

// SetInterval schedules fn to run repeatedly, first after interval, then
// interval after each firing began, until canceled.
func (s *Scheduler) SetInterval(fn func(), interval time.Duration) (*Task, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	t := s.queue.Add(fn, s.clock.Now().Add(interval), interval)
	if t == nil {
		return nil, ErrClosed
	}
	s.logger.Trace().
		Uint64(`task`, t.id).
		Dur(`interval`, interval).
		Log(`interval scheduled`)
	return t, nil
}

// Cancel is an alias of [Task.Cancel].
func (s *Scheduler) Cancel(t *Task) bool {
	return s.queue.Cancel(t)
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	return s.queue.Len()
}

// Done returns a channel that is closed once the scheduler goroutine has
// exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Close stops the scheduler goroutine, discarding any pending tasks. It
// blocks until the goroutine exits, unless called from within a task
// callback, in which case the goroutine exits after the callback returns.
// Subsequent calls return [ErrClosed].
func (s *Scheduler) Close() error {
	err := ErrClosed
	s.closeOnce.Do(func() {
		err = nil
		s.closing.Store(true)
		s.queue.Close()
		s.signal.Signal()
		if s.owner.IsCurrent() {
			return
		}
		<-s.done
	})
	return err
}
