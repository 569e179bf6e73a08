//go:build linux

package schedule

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// wakeSignal is a countable wait signal backed by an eventfd. Signals
// accumulate in the eventfd counter until the next Wait drains them, so a
// signal sent while the waiter is busy is never lost.
type wakeSignal struct {
	fd     int
	mu     sync.RWMutex // guards fd against use after Close
	closed bool
}

func newWakeSignal() (*wakeSignal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &wakeSignal{fd: fd}, nil
}

// Signal wakes the waiter, or the next Wait, if none is blocked.
func (s *wakeSignal) Signal() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is saturated, which still wakes the waiter
	_, _ = unix.Write(s.fd, buf[:])
}

// Wait blocks until signaled, or until timeout elapses. A negative timeout
// waits indefinitely. Sub-millisecond timeouts round up to 1ms.
func (s *wakeSignal) Wait(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		d := (timeout + time.Millisecond - 1) / time.Millisecond
		if d > math.MaxInt32 {
			d = math.MaxInt32
		}
		ms = int(d)
	}

	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(fds, ms); err != nil {
		if err == unix.EINTR {
			// caller recomputes the deadline and waits again
			return nil
		}
		return err
	}

	if fds[0].Revents&unix.POLLIN != 0 {
		var buf [8]byte
		_, _ = unix.Read(s.fd, buf[:])
	}
	return nil
}

// Close releases the eventfd. It must not be called while a Wait is blocked.
func (s *wakeSignal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}
