// Package wake implements a cross-goroutine wake-up signal that runs a
// function on a single consumer loop.
//
// Sends from any goroutine coalesce: while a wake is pending, further sends
// are absorbed. Closing is asynchronous; the close callback runs on the loop
// once every wake submitted before it has been handled.
package wake

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Send once Close has been called.
var ErrClosed = errors.New("wake: signal closed")

// Loop runs submitted functions one at a time, in submission order.
type Loop interface {
	Submit(fn func()) error
}

// Signal wakes a loop to run a bound function.
type Signal struct {
	loop  Loop
	fn    func()
	group *Group
	log   zerolog.Logger

	pending atomic.Bool
	closing atomic.Bool
	closed  atomic.Bool

	closeOnce sync.Once
}

// Option configures a Signal.
type Option func(*Signal)

// WithGroup registers the signal in g until it is closed.
func WithGroup(g *Group) Option {
	return func(s *Signal) { s.group = g }
}

// WithLogger sets the logger used for loop submission failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Signal) { s.log = log }
}

// New binds fn to loop.
func New(loop Loop, fn func(), opts ...Option) (*Signal, error) {
	if loop == nil || fn == nil {
		return nil, errors.New("wake: nil loop or function")
	}
	s := &Signal{
		loop: loop,
		fn:   fn,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.group != nil {
		s.group.add()
	}
	return s, nil
}

// Send schedules a run of the bound function. Safe from any goroutine.
func (s *Signal) Send() error {
	if s.closing.Load() {
		return ErrClosed
	}
	if !s.pending.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.loop.Submit(s.run); err != nil {
		s.pending.Store(false)
		return err
	}
	return nil
}

func (s *Signal) run() {
	// cleared first so sends made by fn schedule another run
	s.pending.Store(false)
	if s.closed.Load() {
		return
	}
	s.fn()
}

// Close detaches the signal. onClose runs on the loop after every wake
// submitted before Close. If the loop no longer accepts work, onClose runs
// on the calling goroutine. Subsequent calls do nothing.
func (s *Signal) Close(onClose func()) {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		finish := func() {
			s.closed.Store(true)
			if s.group != nil {
				s.group.remove()
			}
			if onClose != nil {
				onClose()
			}
		}
		if err := s.loop.Submit(finish); err != nil {
			s.log.Debug().Err(err).Msg("loop gone, closing wake signal inline")
			finish()
		}
	})
}

// Closed reports whether the close callback has run.
func (s *Signal) Closed() bool {
	return s.closed.Load()
}

// Group counts live signals, the loop's active handles.
type Group struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

// NewGroup returns an empty, idle group.
func NewGroup() *Group {
	idle := make(chan struct{})
	close(idle)
	return &Group{idle: idle}
}

func (g *Group) add() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == 0 {
		g.idle = make(chan struct{})
	}
	g.n++
}

func (g *Group) remove() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == 0 {
		return
	}
	g.n--
	if g.n == 0 {
		close(g.idle)
	}
}

// Len returns the number of live signals.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Idle returns a channel closed while no signal is live. A signal created
// afterwards does not reopen a channel already returned.
func (g *Group) Idle() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idle
}
