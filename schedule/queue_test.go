package schedule

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	q, err := NewQueue(append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return q, clock
}

func TestQueue_Poll_tieBreakInsertionOrder(t *testing.T) {
	q, clock := newTestQueue(t)
	base := clock.Now()

	var fired []string
	add := func(name string, after time.Duration) {
		q.Add(func() { fired = append(fired, name) }, base.Add(after), 0)
	}
	add("A", 10*time.Millisecond)
	add("B", 20*time.Millisecond)
	add("C", 20*time.Millisecond)
	add("D", 5*time.Millisecond)

	now := clock.Advance(25 * time.Millisecond)
	_, ok := q.Poll(now)

	assert.False(t, ok, "queue should be empty")
	assert.Equal(t, []string{"D", "A", "B", "C"}, fired)
}

func TestQueue_Poll_onlyDueTasks(t *testing.T) {
	q, clock := newTestQueue(t)
	base := clock.Now()

	var fired []int
	for _, ms := range []int{30, 10, 50, 20, 40} {
		q.Add(func() { fired = append(fired, ms) }, base.Add(time.Duration(ms)*time.Millisecond), 0)
	}

	next, ok := q.Poll(clock.Advance(25 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, base.Add(30*time.Millisecond), next)
	assert.Equal(t, []int{10, 20}, fired)
	assert.Equal(t, 3, q.Len())

	_, ok = q.Poll(clock.Advance(time.Second))
	assert.False(t, ok)
	assert.Equal(t, []int{10, 20, 30, 40, 50}, fired)
}

func TestQueue_Poll_pastDeadlineFiresImmediately(t *testing.T) {
	q, clock := newTestQueue(t)
	var n int
	q.Add(func() { n++ }, clock.Now().Add(-time.Hour), 0)
	q.Poll(clock.Now())
	assert.Equal(t, 1, n)
}

func TestQueue_recurringRearmsFromFiringTime(t *testing.T) {
	q, clock := newTestQueue(t)
	const interval = 10 * time.Millisecond

	var firings []time.Time
	task := q.Add(func() {
		firings = append(firings, clock.Now())
		// simulate work, which must not shift the next deadline
		clock.Advance(3 * time.Millisecond)
	}, clock.Now().Add(interval), interval)

	// poll late, the task fires relative to when it actually ran
	fired := clock.Advance(interval + 4*time.Millisecond)
	next, ok := q.Poll(fired)
	require.True(t, ok)
	assert.Equal(t, fired.Add(interval), next)

	deadline, ok := task.Deadline()
	require.True(t, ok)
	assert.Equal(t, next, deadline)

	for i := 0; i < 20; i++ {
		next, _ = q.Poll(clock.Advance(next.Sub(clock.Now())))
	}
	require.Len(t, firings, 21)
	for i := 1; i < len(firings); i++ {
		assert.GreaterOrEqual(t, firings[i].Sub(firings[i-1]), interval)
	}
}

func TestQueue_callbackDoesNotObserveItselfPending(t *testing.T) {
	q, clock := newTestQueue(t)
	var (
		task       *Task
		pending    bool
		queueLen   = -1
		checkedRun bool
	)
	task = q.Add(func() {
		_, pending = task.Deadline()
		queueLen = q.Len()
		checkedRun = true
	}, clock.Now(), time.Second)

	q.Poll(clock.Now())
	require.True(t, checkedRun)
	assert.False(t, pending)
	assert.Equal(t, 0, queueLen)
	assert.Equal(t, 1, q.Len(), "recurring task should be re-armed after the callback")
}

func TestQueue_Cancel_selfFromRecurringCallback(t *testing.T) {
	q, clock := newTestQueue(t)
	var (
		task   *Task
		count  int
		result bool
	)
	task = q.Add(func() {
		count++
		if count == 3 {
			result = task.Cancel()
		}
	}, clock.Now(), 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		q.Poll(clock.Advance(5 * time.Millisecond))
	}

	assert.Equal(t, 3, count)
	assert.True(t, result, "canceling a firing recurring task prevents future firings")
	assert.True(t, task.Canceled())
	assert.Equal(t, 0, q.Len())
	assert.False(t, task.Cancel(), "second cancel is a no-op")
}

func TestQueue_Cancel_idempotent(t *testing.T) {
	q, clock := newTestQueue(t)

	var fired int
	oneShot := q.Add(func() { fired++ }, clock.Now(), 0)
	q.Poll(clock.Now())
	require.Equal(t, 1, fired)
	assert.False(t, oneShot.Cancel(), "cancel of a fired one-shot")
	assert.False(t, oneShot.Cancel())

	pending := q.Add(func() { fired++ }, clock.Now().Add(time.Second), 0)
	assert.True(t, pending.Cancel())
	assert.False(t, pending.Cancel())
	q.Poll(clock.Advance(time.Hour))
	assert.Equal(t, 1, fired, "a canceled task never fires")

	var nilTask *Task
	assert.False(t, nilTask.Cancel())
	assert.False(t, q.Cancel(nil))
}

func TestQueue_Cancel_foreignTask(t *testing.T) {
	q1, clock := newTestQueue(t)
	q2, _ := newTestQueue(t)
	task := q1.Add(func() {}, clock.Now(), 0)
	assert.False(t, q2.Cancel(task))
	assert.Equal(t, 1, q1.Len())
}

func TestQueue_Cancel_fromOtherGoroutineWhileFiring(t *testing.T) {
	q, clock := newTestQueue(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var count int
	task := q.Add(func() {
		count++
		if count == 1 {
			close(entered)
			<-release
		}
	}, clock.Now(), time.Millisecond)

	polled := make(chan struct{})
	go func() {
		defer close(polled)
		q.Poll(clock.Now())
	}()

	<-entered
	// the queue lock is not held by the firing callback
	assert.True(t, task.Cancel())
	close(release)
	<-polled

	assert.Equal(t, 0, q.Len())
	q.Poll(clock.Advance(time.Second))
	assert.Equal(t, 1, count)
}

func TestQueue_callbackMayAdd(t *testing.T) {
	q, clock := newTestQueue(t)
	var order []string
	q.Add(func() {
		order = append(order, "outer")
		q.Add(func() { order = append(order, "inner") }, clock.Now(), 0)
	}, clock.Now(), 0)

	q.Poll(clock.Now())
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestQueue_panicIsolated(t *testing.T) {
	var (
		buf      bytes.Buffer
		handled  []error
		handledT []*Task
	)
	logger := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(&buf))).Logger()
	q, clock := newTestQueue(t,
		WithLogger(logger),
		WithErrorHandler(func(task *Task, err error) {
			handledT = append(handledT, task)
			handled = append(handled, err)
		}),
	)

	var after int
	bad := q.Add(func() { panic(errors.New("bad task")) }, clock.Now(), 0)
	q.Add(func() { after++ }, clock.Now(), 0)

	_, ok := q.Poll(clock.Now())
	assert.False(t, ok)
	assert.Equal(t, 1, after, "other tasks still fire")

	require.Len(t, handled, 1)
	assert.Same(t, bad, handledT[0])
	var pe *PanicError
	require.ErrorAs(t, handled[0], &pe)
	assert.EqualError(t, errors.Unwrap(handled[0]), "bad task")

	assert.Contains(t, buf.String(), `timer callback failed`)
	assert.Contains(t, buf.String(), `bad task`)
}

func TestQueue_panicRecurringStaysArmedAndLogsAreLimited(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(&buf))).Logger()
	var failures int
	q, clock := newTestQueue(t,
		WithLogger(logger),
		WithErrorHandler(func(*Task, error) { failures++ }),
	)

	q.Add(func() { panic("again") }, clock.Now(), time.Millisecond)
	for i := 0; i < 5; i++ {
		q.Poll(clock.Advance(time.Millisecond))
	}

	assert.Equal(t, 5, failures)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, strings.Count(buf.String(), `timer callback failed`))
}

func TestQueue_errorHandlerPanicDoesNotEscape(t *testing.T) {
	q, clock := newTestQueue(t, WithErrorHandler(func(*Task, error) { panic("handler") }))
	q.Add(func() { panic("task") }, clock.Now(), 0)
	assert.NotPanics(t, func() { q.Poll(clock.Now()) })
}

func TestQueue_Add_nilCallback(t *testing.T) {
	q, clock := newTestQueue(t)
	assert.Nil(t, q.Add(nil, clock.Now(), 0))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Clear(t *testing.T) {
	q, clock := newTestQueue(t)
	a := q.Add(func() { t.Error("fired after clear") }, clock.Now(), 0)
	q.Add(func() { t.Error("fired after clear") }, clock.Now(), time.Second)
	assert.Equal(t, 2, q.Clear())
	assert.True(t, a.Canceled())
	_, ok := q.Poll(clock.Advance(time.Hour))
	assert.False(t, ok)
}

func TestQueue_notifyOnlyWhenHeadChanges(t *testing.T) {
	q, clock := newTestQueue(t)
	var notified int
	q.notify = func() { notified++ }

	late := q.Add(func() {}, clock.Now().Add(time.Second), 0)
	assert.Equal(t, 1, notified)
	q.Add(func() {}, clock.Now().Add(2*time.Second), 0)
	assert.Equal(t, 1, notified, "later deadline does not wake")
	q.Add(func() {}, clock.Now().Add(time.Millisecond), 0)
	assert.Equal(t, 2, notified)
	late.Cancel()
	assert.Equal(t, 2, notified, "non-head cancel does not wake")
}

func TestWithFailureLogRates_invalid(t *testing.T) {
	_, err := NewQueue(WithFailureLogRates(map[time.Duration]int{time.Second: 10, time.Minute: 1}))
	assert.Error(t, err)

	q, err := NewQueue(WithFailureLogRates(nil))
	require.NoError(t, err)
	assert.Nil(t, q.failureLogs)
}

func TestWithClock_nil(t *testing.T) {
	_, err := NewQueue(WithClock(nil))
	assert.Error(t, err)
}

func TestQueue_Cancel_selfWithConcurrentPoller(t *testing.T) {
	q, clock := newTestQueue(t)
	var (
		self     *Task
		result   bool
		aEntered = make(chan struct{})
		bEntered = make(chan struct{})
		aDone    = make(chan struct{})
	)
	self = q.Add(func() {
		close(aEntered)
		<-bEntered
		result = self.Cancel()
		close(aDone)
	}, clock.Now(), time.Millisecond)
	q.Add(func() {
		close(bEntered)
		<-aDone
	}, clock.Now().Add(time.Nanosecond), 0)

	now := clock.Advance(time.Nanosecond)
	var wg sync.WaitGroup
	wg.Go(func() { q.Poll(now) })
	<-aEntered
	wg.Go(func() { q.Poll(now) })
	wg.Wait()

	assert.True(t, result, "self cancel prevents the re-arm while another poll is firing")
	assert.True(t, self.Canceled())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Clear_cancelsEveryFiringTask(t *testing.T) {
	q, clock := newTestQueue(t)
	var (
		entered = make(chan struct{}, 2)
		release = make(chan struct{})
		tasks   []*Task
	)
	for i := 0; i < 2; i++ {
		tasks = append(tasks, q.Add(func() {
			entered <- struct{}{}
			<-release
		}, clock.Now(), time.Millisecond))
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Go(func() { q.Poll(clock.Now()) })
	}
	<-entered
	<-entered
	assert.Equal(t, 0, q.Clear())
	close(release)
	wg.Wait()

	for _, task := range tasks {
		assert.True(t, task.Canceled())
	}
	assert.Equal(t, 0, q.Len(), "firing recurring tasks are not re-armed after Clear")
}

func TestQueue_Close(t *testing.T) {
	q, clock := newTestQueue(t)
	pending := q.Add(func() {}, clock.Now().Add(time.Second), 0)

	assert.Equal(t, 1, q.Close())
	assert.True(t, pending.Canceled())
	assert.Nil(t, q.Add(func() {}, clock.Now(), 0), "closed queues reject tasks")
	assert.Equal(t, 0, q.Len())
}
