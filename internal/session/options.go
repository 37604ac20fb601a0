package session

import (
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/wake"
)

// ErrorHandler receives panics recovered from the completion callback.
type ErrorHandler func(id uint32, recovered any)

type options struct {
	log     zerolog.Logger
	onError ErrorHandler
	group   *wake.Group
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithErrorHandler sets the handler for callback panics. The default logs
// them at error level.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

// WithGroup registers the session's wake signal in g.
func WithGroup(g *wake.Group) Option {
	return func(o *options) { o.group = g }
}

func resolveOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onError == nil {
		log := o.log
		o.onError = func(id uint32, recovered any) {
			log.Error().Uint32("id", id).Interface("panic", recovered).Msg("completion callback panicked")
		}
	}
	return o
}
