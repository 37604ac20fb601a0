package jsbind

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/native"
	"github.com/llehouerou/eventsound/internal/wake"
)

// moduleOptions holds configuration for a [Module] instance.
type moduleOptions struct {
	loop      wake.Loop
	create    native.CreateFunc
	group     *wake.Group
	log       zerolog.Logger
	onLoad    func(*Module)
	uncaught  func(error)
	baseProps map[string]string
}

// Option configures a [Module] instance.
type Option interface {
	applyOption(*moduleOptions) error
}

type optionFunc struct {
	fn func(*moduleOptions) error
}

func (o *optionFunc) applyOption(opts *moduleOptions) error {
	return o.fn(opts)
}

// WithLoop sets the loop completions are delivered on. It must be the loop
// the runtime is driven from. Required.
func WithLoop(loop wake.Loop) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if loop == nil {
			return errors.New("jsbind: loop must not be nil")
		}
		opts.loop = loop
		return nil
	}}
}

// WithCreator sets how native contexts are created. Required.
func WithCreator(create native.CreateFunc) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if create == nil {
			return errors.New("jsbind: creator must not be nil")
		}
		opts.create = create
		return nil
	}}
}

// WithGroup registers every session's wake signal in g, so the embedder
// can tell when all contexts are gone.
func WithGroup(g *wake.Group) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.group = g
		return nil
	}}
}

// WithLogger sets the module logger.
func WithLogger(log zerolog.Logger) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.log = log
		return nil
	}}
}

// WithOnLoad is called with the module each time a runtime requires it.
func WithOnLoad(fn func(*Module)) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.onLoad = fn
		return nil
	}}
}

// WithUncaught receives exceptions thrown by completion callbacks. By
// default they are logged.
func WithUncaught(fn func(error)) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.uncaught = fn
		return nil
	}}
}

// WithBaseProps sets properties applied to every context before the
// script's own, e.g. application.name from the config file.
func WithBaseProps(props map[string]string) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.baseProps = props
		return nil
	}}
}

func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.loop == nil {
		return nil, errors.New("jsbind: WithLoop is required")
	}
	if cfg.create == nil {
		return nil, errors.New("jsbind: WithCreator is required")
	}
	if cfg.uncaught == nil {
		log := cfg.log
		cfg.uncaught = func(err error) {
			log.Error().Err(err).Msg("uncaught exception in completion callback")
		}
	}
	return cfg, nil
}
