package schedule

import (
	"time"
)

// Task is a pending or completed timer task, returned by [Queue.Add],
// [Scheduler.SetTimeout] and [Scheduler.SetInterval]. It doubles as the
// handle used for cancellation.
type Task struct {
	fn       func()
	queue    *Queue
	deadline time.Time
	interval time.Duration
	id       uint64
	seq      uint64 // insertion order, for tie breaking
	index    int    // heap index, -1 when not queued
	canceled bool
}

// ID returns the identity of the task, unique per Queue.
func (t *Task) ID() uint64 {
	if t == nil {
		return 0
	}
	return t.id
}

// Recurring reports whether the task re-arms itself after each firing.
func (t *Task) Recurring() bool {
	return t != nil && t.interval > 0
}

// Interval returns the re-arm interval, or zero for one-shot tasks.
func (t *Task) Interval() time.Duration {
	if t == nil {
		return 0
	}
	return t.interval
}

// Deadline returns the absolute time at which the task is next eligible to
// fire. The second return value is false if the task is not pending, e.g.
// because it has fired (one-shot), is currently firing, or was canceled.
func (t *Task) Deadline() (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	t.queue.mu.Lock()
	defer t.queue.mu.Unlock()
	if t.index < 0 {
		return time.Time{}, false
	}
	return t.deadline, true
}

// Cancel prevents any further firing of the task. It is idempotent, and safe
// to call from within the task's own callback. It returns true if a future
// firing was prevented.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	return t.queue.Cancel(t)
}

// Canceled reports whether the task was canceled, by Cancel, or by clearing or
// closing its queue.
func (t *Task) Canceled() bool {
	if t == nil {
		return false
	}
	t.queue.mu.Lock()
	defer t.queue.mu.Unlock()
	return t.canceled
}

// taskHeap is a min-heap of tasks, by deadline then insertion order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
