// Package schedule runs one-shot and recurring callbacks on a dedicated
// goroutine.
//
// # Architecture
//
// A [Queue] holds pending [Task] values ordered by absolute deadline, with
// ties broken by insertion order. A [Scheduler] owns one Queue, one
// background goroutine, and one wait signal. The goroutine repeatedly polls
// the queue, firing every due task, then sleeps until either the next
// deadline or until an insertion or cancellation wakes it.
//
// # Cancellation
//
// The queue mutex is held only for bookkeeping, never while a callback runs.
// The queue records which tasks are currently firing, so that a recurring task
// may cancel itself from within its own callback: it will not be re-armed,
// and no lock is re-acquired by the goroutine that is running it.
//
// # Failures
//
// A callback that panics is isolated: the panic is recovered at the poll
// boundary, reported to the handler configured via [WithErrorHandler], and
// logged (rate limited per task). Other tasks, and later firings of the same
// recurring task, are unaffected.
//
// # Usage
//
//	s, err := schedule.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	t, _ := s.SetInterval(func() {
//	    fmt.Println("tick")
//	}, 100*time.Millisecond)
//
//	time.Sleep(time.Second)
//	t.Cancel()
package schedule
