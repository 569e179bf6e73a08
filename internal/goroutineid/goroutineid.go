// Package goroutineid identifies the calling goroutine, for detecting
// reentrant calls from a dedicated worker goroutine.
package goroutineid

import (
	"runtime"
	"sync/atomic"
)

// Get returns the current goroutine's ID, parsed from the runtime stack
// header ("goroutine N [...]"). It is never zero for a live goroutine.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Owner records which goroutine currently owns a worker role.
// The zero value is unowned.
type Owner struct {
	id atomic.Uint64
}

// Claim marks the calling goroutine as the owner.
func (x *Owner) Claim() { x.id.Store(Get()) }

// Release clears ownership.
func (x *Owner) Release() { x.id.Store(0) }

// IsCurrent reports whether the calling goroutine is the owner.
func (x *Owner) IsCurrent() bool {
	id := x.id.Load()
	if id == 0 {
		return false
	}
	return Get() == id
}
