//go:build !linux

package schedule

import (
	"time"
)

// wakeSignal is a countable wait signal backed by a one-slot channel. Any
// number of signals sent while the waiter is busy coalesce into one wake.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() (*wakeSignal, error) {
	return &wakeSignal{ch: make(chan struct{}, 1)}, nil
}

// Signal wakes the waiter, or the next Wait, if none is blocked.
func (s *wakeSignal) Signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until signaled, or until timeout elapses. A negative timeout
// waits indefinitely.
func (s *wakeSignal) Wait(timeout time.Duration) error {
	if timeout < 0 {
		<-s.ch
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
	case <-timer.C:
	}
	return nil
}

// Close is a no-op.
func (s *wakeSignal) Close() error { return nil }
