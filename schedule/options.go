// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package schedule

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-frameloop/internal/panics"
	"github.com/joeycumines/logiface"
)

// Clock provides the current time. It is consulted for the firing time of
// recurring tasks, and by [Scheduler] for computing deadlines.
type Clock interface {
	Now() time.Time
}

// ClockFunc implements [Clock].
type ClockFunc func() time.Time

// Now calls the function.
func (f ClockFunc) Now() time.Time { return f() }

// ErrorHandler receives failures of task callbacks. It is invoked on the
// goroutine that polled the queue, after the failing task has been re-armed
// (if recurring).
type ErrorHandler func(task *Task, err error)

// defaultFailureLogRates limits failure logs per task.
var defaultFailureLogRates = map[time.Duration]int{
	time.Second: 1,
	time.Minute: 10,
}

// options holds configuration for Queue and Scheduler creation.
type options struct {
	logger       *logiface.Logger[logiface.Event]
	clock        Clock
	onError      ErrorHandler
	failureRates map[time.Duration]int
}

// Option configures a [Queue] or [Scheduler].
type Option interface {
	apply(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*options) error
}

func (o *optionImpl) apply(opts *options) error {
	return o.applyFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging,
// which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// WithClock replaces the wall clock, e.g. for deterministic tests.
func WithClock(clock Clock) Option {
	return &optionImpl{func(opts *options) error {
		if clock == nil {
			return fmt.Errorf("schedule: nil clock")
		}
		opts.clock = clock
		return nil
	}}
}

// WithErrorHandler registers a handler for task callback failures.
// Failures are always logged; the handler is for escalation, e.g. a
// fail-fast policy that closes the scheduler.
func WithErrorHandler(handler ErrorHandler) Option {
	return &optionImpl{func(opts *options) error {
		opts.onError = handler
		return nil
	}}
}

// WithFailureLogRates configures the per-task rate limit applied to failure
// logs, see [catrate.NewLimiter] for the format. Passing an empty (non-nil)
// map disables limiting.
func WithFailureLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *options) error {
		if rates == nil {
			rates = map[time.Duration]int{}
		}
		opts.failureRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to a new options value.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		clock:        ClockFunc(time.Now),
		failureRates: defaultFailureLogRates,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newFailureLimiter converts the panic raised by catrate for invalid rates
// into an error.
func newFailureLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	err = panics.Call(func() { limiter = catrate.NewLimiter(rates) })
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid failure log rates: %w", err)
	}
	return limiter, nil
}
