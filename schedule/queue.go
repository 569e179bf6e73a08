package schedule

import (
	"container/heap"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-frameloop/internal/panics"
	"github.com/joeycumines/logiface"
)

// Queue is an ordered collection of pending tasks, keyed by absolute
// deadline, with ties broken by insertion order.
//
// The queue is safe for concurrent use. Its mutex is held only while the
// heap is modified, never while a callback runs, so callbacks may freely
// call [Queue.Add] and [Queue.Cancel], including on their own task.
type Queue struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	clock       Clock
	onError     ErrorHandler
	logger      *logiface.Logger[logiface.Event]
	failureLogs *catrate.Limiter

	// notify is invoked (without mu held) when the earliest deadline moved
	// earlier, or the head was removed, i.e. a waiter must recompute.
	notify func()

	// firing are the tasks whose callbacks are currently running, one per
	// concurrent Poll.
	firing map[*Task]struct{}

	heap    taskHeap
	nextID  uint64
	nextSeq uint64
	mu      sync.Mutex
	closed  bool
}

// NewQueue creates an empty queue. Only [WithLogger], [WithClock],
// [WithErrorHandler] and [WithFailureLogRates] are meaningful.
func NewQueue(opts ...Option) (*Queue, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return newQueue(cfg)
}

func newQueue(cfg *options) (*Queue, error) {
	limiter, err := newFailureLimiter(cfg.failureRates)
	if err != nil {
		return nil, err
	}
	return &Queue{
		clock:       cfg.clock,
		onError:     cfg.onError,
		logger:      cfg.logger,
		failureLogs: limiter,
	}, nil
}

// Add inserts a task that becomes eligible to fire at deadline. Deadlines in
// the past fire on the next poll. If interval is positive, the task is
// recurring, and is re-armed after each firing at the firing time plus
// interval. Add returns nil if fn is nil, or the queue is closed.
func (q *Queue) Add(fn func(), deadline time.Time, interval time.Duration) *Task {
	if fn == nil {
		return nil
	}
	if interval < 0 {
		interval = 0
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.nextID++
	q.nextSeq++
	t := &Task{
		fn:       fn,
		queue:    q,
		deadline: deadline,
		interval: interval,
		id:       q.nextID,
		seq:      q.nextSeq,
		index:    -1,
	}
	heap.Push(&q.heap, t)
	head := q.heap[0] == t
	q.mu.Unlock()

	if head {
		q.wake()
	}

	return t
}

// Cancel marks the task inert, removing it from the queue. It is idempotent,
// and never an error: cancelling a fired one-shot task, or a task that was
// already canceled, is a no-op returning false.
//
// If the task is currently firing (e.g. a recurring task canceling itself
// from within its callback), the in-flight callback completes, and the task
// is not re-armed.
func (q *Queue) Cancel(t *Task) bool {
	if t == nil || t.queue != q {
		return false
	}

	q.mu.Lock()
	if t.canceled {
		q.mu.Unlock()
		return false
	}
	t.canceled = true

	var prevented, wasHead bool
	switch {
	case t.index >= 0:
		wasHead = t.index == 0
		heap.Remove(&q.heap, t.index)
		prevented = true
	case t.interval > 0:
		_, prevented = q.firing[t]
	}
	q.mu.Unlock()

	if wasHead {
		q.wake()
	}

	return prevented
}

// Poll fires every task whose deadline is at or before now, in increasing
// deadline order, returning the deadline of the new earliest task, or false
// if the queue is empty.
//
// Each task is removed before its callback is invoked. Recurring tasks are
// re-armed after their callback returns, relative to the time they fired (as
// reported by the clock), rather than now, so that latency between polls does
// not accumulate as drift.
func (q *Queue) Poll(now time.Time) (time.Time, bool) {
	for {
		q.mu.Lock()
		if len(q.heap) == 0 || q.heap[0].deadline.After(now) {
			next, ok := q.nextLocked()
			q.mu.Unlock()
			return next, ok
		}

		t := heap.Pop(&q.heap).(*Task)
		fired := q.clock.Now()
		if fired.Before(t.deadline) {
			// polled ahead of the clock
			fired = t.deadline
		}
		if q.firing == nil {
			q.firing = make(map[*Task]struct{})
		}
		q.firing[t] = struct{}{}
		q.mu.Unlock()

		err := panics.Call(t.fn)

		q.mu.Lock()
		delete(q.firing, t)
		if t.interval > 0 && !t.canceled {
			q.nextSeq++
			t.seq = q.nextSeq
			t.deadline = fired.Add(t.interval)
			heap.Push(&q.heap, t)
		}
		q.mu.Unlock()

		if err != nil {
			q.report(t, err)
		}
	}
}

// Next returns the earliest deadline, or false if the queue is empty.
func (q *Queue) Next() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextLocked()
}

// Len returns the number of pending tasks. A task whose callback is running
// is not pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Clear cancels every pending task, and every task currently firing,
// returning the number removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clearLocked()
}

// Close clears the queue, and causes any further Add to return nil. It
// returns the number of tasks removed.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return q.clearLocked()
}

func (q *Queue) clearLocked() int {
	n := len(q.heap)
	for _, t := range q.heap {
		t.canceled = true
		t.index = -1
	}
	q.heap = nil
	for t := range q.firing {
		t.canceled = true
	}
	return n
}

func (q *Queue) nextLocked() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].deadline, true
}

func (q *Queue) wake() {
	if q.notify != nil {
		q.notify()
	}
}

// report logs a callback failure, and passes it to the error handler.
func (q *Queue) report(t *Task, err error) {
	if b := q.logger.Err(); b.Enabled() {
		next, ok := q.failureLogs.Allow(t.id)
		if ok {
			b = b.Err(err).
				Uint64(`task`, t.id).
				Bool(`recurring`, t.interval > 0)
			if !next.IsZero() {
				b = b.Time(`suppressed_until`, next)
			}
			b.Log(`timer callback failed`)
		} else {
			b.Release()
		}
	}

	if q.onError != nil {
		if herr := panics.Call(func() { q.onError(t, err) }); herr != nil {
			q.logger.Crit().
				Err(herr).
				Uint64(`task`, t.id).
				Log(`timer error handler panicked`)
		}
	}
}
