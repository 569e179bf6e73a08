// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package video

import (
	"github.com/joeycumines/logiface"
)

// runtimeOptions holds configuration for Runtime creation.
type runtimeOptions struct {
	logger     *logiface.Logger[logiface.Event]
	onFailure  func(err error)
	varyOnMain bool
}

// Option configures a [Runtime] instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// runtimeOptionImpl implements Option.
type runtimeOptionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (r *runtimeOptionImpl) applyRuntime(opts *runtimeOptions) error {
	return r.applyRuntimeFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging,
// which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithVaryOnMain selects the goroutine that calls [Platform.InitVary]. If
// true, it runs on the goroutine calling Start, otherwise (the default) on
// the render goroutine. The choice is fixed for the lifetime of the runtime.
func WithVaryOnMain(enabled bool) Option {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.varyOnMain = enabled
		return nil
	}}
}

// WithFailureHandler registers a handler for session failures, i.e. errors or
// panics from initialization, the frame callback, or [Renderer.Present].
//
// The handler runs before the renderer is shut down, on the goroutine that
// observed the failure: the caller of Start for initialization on that
// goroutine, otherwise the render goroutine. It must not block on the
// runtime's lifecycle methods.
func WithFailureHandler(handler func(err error)) Option {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.onFailure = handler
		return nil
	}}
}

// resolveRuntimeOptions applies Option instances to a new runtimeOptions.
func resolveRuntimeOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
