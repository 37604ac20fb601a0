// Package runloop owns the single consumer event loop that session
// callbacks and script code run on.
package runloop

import (
	"context"
	"errors"
	"sync"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/rs/zerolog"
)

// ErrTerminated is returned when work is submitted to a stopped loop.
var ErrTerminated = eventloop.ErrLoopTerminated

// Loop wraps an eventloop.Loop running on its own goroutine.
type Loop struct {
	loop *eventloop.Loop
	log  zerolog.Logger

	startOnce sync.Once
	done      chan struct{}
	runErr    error
}

// New creates a loop. It does not start running until Start is called.
func New(log zerolog.Logger) (*Loop, error) {
	l, err := eventloop.New()
	if err != nil {
		return nil, err
	}
	return &Loop{
		loop: l,
		log:  log,
		done: make(chan struct{}),
	}, nil
}

// Start runs the loop in a background goroutine until ctx is canceled or
// Shutdown is called. Calling Start more than once has no effect.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go func() {
			defer close(l.done)
			err := l.loop.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrTerminated) {
				l.log.Error().Err(err).Msg("event loop stopped")
				l.runErr = err
			}
		}()
	})
}

// Submit queues fn to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Submit(fn func()) error {
	return l.loop.Submit(func() { fn() })
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Submit(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown drains queued work and stops the loop.
func (l *Loop) Shutdown(ctx context.Context) error {
	err := l.loop.Shutdown(ctx)
	if errors.Is(err, ErrTerminated) {
		err = nil
	}
	return err
}

// Close stops the loop immediately.
func (l *Loop) Close() error {
	err := l.loop.Close()
	if errors.Is(err, ErrTerminated) {
		return nil
	}
	return err
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the error the loop stopped with, if any. Valid after Done.
func (l *Loop) Err() error {
	<-l.done
	return l.runErr
}

// AfterFunc runs fn on the loop once d has elapsed, using the loop's own
// timer heap. The returned function cancels the timer and reports whether
// fn was still pending.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (stop func() bool, err error) {
	id, err := l.loop.ScheduleTimer(d, fn)
	if err != nil {
		return nil, err
	}
	return func() bool {
		return l.loop.CancelTimer(id) == nil
	}, nil
}
