package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/backend"
	"github.com/llehouerou/eventsound/internal/config"
	"github.com/llehouerou/eventsound/internal/desktop"
	"github.com/llehouerou/eventsound/internal/logging"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/soundcache"
	"github.com/llehouerou/eventsound/internal/theme"
)

// env holds what every subcommand needs: configuration, logging and the
// shared pieces native contexts are built from.
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	resolver *theme.Resolver
	cache    *soundcache.Store // nil when disabled
	desktop  desktop.Reader

	closers []func() error
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, closeLog, err := logging.New(cfg.GetLogConfig())
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, closers: []func() error{closeLog}}

	themeCfg := cfg.GetThemeConfig()
	e.resolver = theme.NewResolver(
		theme.WithDirs(themeCfg.Dirs...),
		theme.WithLogger(log.With().Str("component", "theme").Logger()),
	)

	if cacheCfg := cfg.GetCacheConfig(); cacheCfg.CacheEnabled() {
		store, err := soundcache.Open(cacheCfg.Path,
			soundcache.WithTTL(time.Duration(cacheCfg.TTLDays)*24*time.Hour),
			soundcache.WithLogger(log.With().Str("component", "soundcache").Logger()),
		)
		if err != nil {
			// lookups still work uncached
			log.Warn().Err(err).Msg("opening lookup cache")
		} else {
			e.cache = store
			e.closers = append(e.closers, store.Close)
		}
	}

	e.desktop, err = desktop.New(cfg.UsePortal())
	if err != nil {
		log.Warn().Err(err).Msg("reading desktop settings")
		e.desktop = desktop.Static(desktop.Defaults())
	}
	e.closers = append(e.closers, e.desktop.Close)

	return e, nil
}

// backendOptions returns the options for native contexts. driver and
// themeName override the configuration when non-empty.
func (e *env) backendOptions(driver, themeName string) []backend.Option {
	themeCfg := e.cfg.GetThemeConfig()
	defaults := backend.Defaults{
		Driver:  e.cfg.Driver,
		Theme:   themeCfg.Name,
		Profile: themeCfg.OutputProfile,
		Locale:  themeCfg.Locale,
	}
	if driver != "" {
		defaults.Driver = driver
	}
	if themeName != "" {
		defaults.Theme = themeName
	}

	opts := []backend.Option{
		backend.WithDefaults(defaults),
		backend.WithResolver(e.resolver),
		backend.WithDesktop(e.desktop),
		backend.WithLogger(e.log.With().Str("component", "backend").Logger()),
	}
	if e.cache != nil {
		opts = append(opts, backend.WithCache(e.cache))
	}
	return opts
}

// baseProps returns the configured [properties] plus application.name.
func (e *env) baseProps() (*proplist.Proplist, error) {
	p, err := proplist.FromMap(e.cfg.Properties)
	if err != nil {
		return nil, fmt.Errorf("config properties: %w", err)
	}
	if p.Get(proplist.ApplicationName) == "" {
		_ = p.Sets(proplist.ApplicationName, appName)
	}
	return p, nil
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
