package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/llehouerou/eventsound/internal/backend"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/runloop"
	"github.com/llehouerou/eventsound/internal/session"
	"github.com/llehouerou/eventsound/internal/sounderr"
)

const teardownTimeout = 5 * time.Second

func cmdPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	driver := fs.String("driver", "", "output driver: auto, pulse, speaker or null")
	themeName := fs.String("theme", "", "sound theme (default: config, then desktop)")
	file := fs.String("file", "", "play this file instead of an event sound")
	timeout := fs.Duration("timeout", 30*time.Second, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	props, err := playProps(*file, fs.Args())
	if err != nil {
		return &exitError{status: 2, err: err}
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	base, err := e.baseProps()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	loop, err := runloop.New(e.log)
	if err != nil {
		return err
	}
	loop.Start(context.Background())
	defer shutdownLoop(loop)

	done := make(chan error, 1)
	var (
		s       *session.Session
		openErr error
	)
	create := backend.Creator(e.backendOptions(*driver, *themeName)...)
	if err := loop.Do(ctx, func() {
		s, openErr = session.Open(loop, create, base, func(_ uint32, err error) { done <- err },
			session.WithLogger(e.log.With().Str("component", "session").Logger()))
		if openErr == nil {
			s.Play(1, props)
		}
	}); err != nil {
		return err
	}
	if openErr != nil {
		return soundExit(openErr)
	}

	var playErr error
	select {
	case playErr = <-done:
	case <-ctx.Done():
		playErr = ctx.Err()
	}
	releaseSession(loop, s)

	if playErr != nil {
		return soundExit(playErr)
	}
	return nil
}

// playProps builds the play properties from the command line.
func playProps(file string, args []string) (*proplist.Proplist, error) {
	p := proplist.New()
	if file == "" {
		if len(args) == 0 {
			return nil, errors.New("missing event id")
		}
		_ = p.Sets(proplist.EventID, args[0])
		args = args[1:]
	} else {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		_ = p.Sets(proplist.MediaFilename, abs)
	}

	for _, kv := range args {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("property %q: want key=value", kv)
		}
		if err := p.Sets(key, value); err != nil {
			return nil, fmt.Errorf("property %q: invalid key", key)
		}
	}
	return p, nil
}

// releaseSession destroys s on the loop, drops the caller's reference and
// waits for the session to detach.
func releaseSession(loop *runloop.Loop, s *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := loop.Do(ctx, func() {
		s.Destroy()
		s.Unref()
	}); err != nil {
		return
	}
	select {
	case <-s.Released():
	case <-ctx.Done():
	}
}

func shutdownLoop(loop *runloop.Loop) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	_ = loop.Shutdown(ctx)
}

// soundExit maps a sound error to an exit status: the negated code, so
// NOTFOUND exits with 9.
func soundExit(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &exitError{status: 1, err: err}
	}
	code := sounderr.CodeOf(err)
	status := int(-code)
	if status <= 0 || status > 125 {
		status = 1
	}
	return &exitError{status: status, err: errors.New(sounderr.Strerror(code))}
}
