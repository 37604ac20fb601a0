package backend

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/desktop"
	"github.com/llehouerou/eventsound/internal/output"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/soundcache"
	"github.com/llehouerou/eventsound/internal/theme"
)

// SinkOpener opens the output sink for a driver name.
type SinkOpener func(driver string, props *proplist.Proplist, log zerolog.Logger) (output.Sink, error)

// Defaults are used when a context's properties do not say otherwise.
type Defaults struct {
	Driver  string
	Theme   string
	Profile string
	Locale  string
}

type options struct {
	defaults    Defaults
	resolver    *theme.Resolver
	cache       *soundcache.Store
	desktop     desktop.Reader
	openSink    SinkOpener
	maxDuration time.Duration
	log         zerolog.Logger
}

// Option configures a Context.
type Option func(*options)

// WithDefaults sets the fallback driver and theme selection.
func WithDefaults(d Defaults) Option {
	return func(o *options) { o.defaults = d }
}

// WithResolver sets the theme resolver. Contexts share it.
func WithResolver(r *theme.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithCache enables the persistent lookup cache. The store is not closed by
// the context.
func WithCache(s *soundcache.Store) Option {
	return func(o *options) { o.cache = s }
}

// WithDesktop sets where desktop sound settings are read from.
func WithDesktop(r desktop.Reader) Option {
	return func(o *options) { o.desktop = r }
}

// WithSinkOpener replaces output.Open.
func WithSinkOpener(fn SinkOpener) Option {
	return func(o *options) { o.openSink = fn }
}

// WithMaxDuration bounds decoded sounds; longer ones fail with TooBig.
func WithMaxDuration(d time.Duration) Option {
	return func(o *options) { o.maxDuration = d }
}

// WithLogger sets the context logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func resolveOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = theme.NewResolver(theme.WithLogger(o.log))
	}
	if o.desktop == nil {
		o.desktop = desktop.Static(desktop.Defaults())
	}
	if o.openSink == nil {
		o.openSink = output.Open
	}
	if o.defaults.Driver == "" {
		o.defaults.Driver = output.DriverAuto
	}
	return o
}
