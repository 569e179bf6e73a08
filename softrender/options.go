// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package softrender

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-frameloop/video"
	"github.com/joeycumines/logiface"
)

// platformOptions holds configuration for Platform creation.
type platformOptions struct {
	logger      *logiface.Logger[logiface.Event]
	capturePath string
	modes       []video.Size
	interval    time.Duration
}

// Option configures a [Platform].
type Option interface {
	applyPlatform(*platformOptions) error
}

// platformOptionImpl implements Option.
type platformOptionImpl struct {
	applyPlatformFunc func(*platformOptions) error
}

func (p *platformOptionImpl) applyPlatform(opts *platformOptions) error {
	return p.applyPlatformFunc(opts)
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &platformOptionImpl{func(opts *platformOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithFrameRate paces Present to at most fps frames per second. Zero
// disables pacing. The default is 60.
func WithFrameRate(fps float64) Option {
	return &platformOptionImpl{func(opts *platformOptions) error {
		if fps < 0 {
			return fmt.Errorf("softrender: invalid frame rate: %v", fps)
		}
		if fps == 0 {
			opts.interval = 0
		} else {
			opts.interval = time.Duration(float64(time.Second) / fps)
		}
		return nil
	}}
}

// WithModes restricts the exclusive fullscreen sizes the display supports.
// By default any size is accepted.
func WithModes(modes ...video.Size) Option {
	return &platformOptionImpl{func(opts *platformOptions) error {
		for _, m := range modes {
			if m.Empty() {
				return fmt.Errorf("softrender: invalid mode: %s", m)
			}
		}
		opts.modes = append([]video.Size(nil), modes...)
		return nil
	}}
}

// WithCapturePath writes the last frame of each session to path, as a PNG,
// when the renderer is shut down. The file is replaced atomically.
func WithCapturePath(path string) Option {
	return &platformOptionImpl{func(opts *platformOptions) error {
		opts.capturePath = path
		return nil
	}}
}

// resolvePlatformOptions applies Option instances to a new platformOptions.
func resolvePlatformOptions(opts []Option) (*platformOptions, error) {
	cfg := &platformOptions{
		interval: time.Second / 60,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyPlatform(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
