// Package session binds a native sound context to a single-goroutine event
// loop. Completions reported by the native layer on arbitrary goroutines are
// queued and delivered to the session callback on the loop, in order.
package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/native"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/sounderr"
	"github.com/llehouerou/eventsound/internal/wake"
)

// Callback receives the outcome of a play on the loop goroutine. err is nil
// on success, otherwise a *sounderr.Error.
type Callback func(id uint32, err error)

// State is the lifecycle state of a Session.
type State int

const (
	StateOpen State = iota
	StateDestroying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Session is one open connection to the sound system.
type Session struct {
	loop    wake.Loop
	cb      Callback
	log     zerolog.Logger
	onError ErrorHandler

	queue  resultQueue
	signal *wake.Signal

	mu    sync.Mutex // guards state and nctx
	state State
	nctx  native.Context

	refs         atomic.Int32
	released     chan struct{}
	releasedOnce sync.Once
}

// Open creates and opens a native context and binds it to loop. props are
// applied before the context is opened. On failure the native context is
// destroyed and a *sounderr.Error is returned.
//
// The returned session holds two references: one for the caller and one
// for the wake signal, dropped once Destroy has fully detached it.
func Open(loop wake.Loop, create native.CreateFunc, props *proplist.Proplist, cb Callback, opts ...Option) (*Session, error) {
	if loop == nil || create == nil || cb == nil {
		return nil, sounderr.Op("open", sounderr.Invalid)
	}
	o := resolveOptions(opts)

	nctx, err := create()
	if err != nil {
		return nil, nativeError("create", err)
	}
	if props.Len() > 0 {
		if err := nctx.ChangeProps(props); err != nil {
			destroyQuietly(nctx, o.log)
			return nil, nativeError("change props", err)
		}
	}
	if err := nctx.Open(); err != nil {
		destroyQuietly(nctx, o.log)
		return nil, nativeError("open", err)
	}

	s := &Session{
		loop:     loop,
		cb:       cb,
		log:      o.log,
		onError:  o.onError,
		nctx:     nctx,
		released: make(chan struct{}),
	}
	s.signal, err = wake.New(loop, s.dispatch, wake.WithGroup(o.group), wake.WithLogger(o.log))
	if err != nil {
		destroyQuietly(nctx, o.log)
		return nil, sounderr.Wrap("open", sounderr.Internal, err)
	}
	s.refs.Store(2)
	s.log.Debug().Msg("session opened")
	return s, nil
}

func destroyQuietly(nctx native.Context, log zerolog.Logger) {
	if err := nctx.Destroy(); err != nil {
		log.Warn().Err(err).Msg("destroying native context")
	}
}

func nativeError(op string, err error) error {
	var se *sounderr.Error
	if errors.As(err, &se) {
		return err
	}
	return sounderr.Wrap(op, sounderr.CodeOf(err), err)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Play starts the sound described by props, tagged with id. It never fails
// synchronously: the outcome always reaches the callback later on the loop,
// including when the session is destroyed or the native layer rejects the
// request.
func (s *Session) Play(id uint32, props *proplist.Proplist) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		s.deliverLater(Record{ID: id, Code: sounderr.Destroyed})
		return
	}
	err := s.nctx.Play(id, props, s.complete)
	s.mu.Unlock()

	if err != nil {
		s.log.Debug().Uint32("id", id).Err(err).Msg("play rejected")
		s.complete(id, sounderr.CodeOf(err))
	}
}

// complete is the native completion. Safe from any goroutine.
func (s *Session) complete(id uint32, code sounderr.Code) {
	if !s.queue.push(Record{ID: id, Code: code}) {
		s.log.Debug().Uint32("id", id).Stringer("code", code).Msg("completion after teardown dropped")
		return
	}
	if err := s.signal.Send(); err != nil && !errors.Is(err, wake.ErrClosed) {
		s.log.Warn().Err(err).Uint32("id", id).Msg("waking loop")
	}
}

func (s *Session) deliverLater(r Record) {
	if err := s.loop.Submit(func() { s.deliver(r) }); err != nil {
		s.log.Warn().Err(err).Uint32("id", r.ID).Msg("loop gone, completion dropped")
	}
}

// Cancel asks the native layer to stop id. It does nothing once destroyed;
// native failures are logged.
func (s *Session) Cancel(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return
	}
	if err := s.nctx.Cancel(id); err != nil {
		s.log.Debug().Uint32("id", id).Err(err).Msg("cancel")
	}
}

// Playing reports whether id is still playing. A destroyed session reports
// false.
func (s *Session) Playing(id uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false, nil
	}
	playing, err := s.nctx.Playing(id)
	if err != nil {
		return false, nativeError("playing", err)
	}
	return playing, nil
}

// Cache preloads the sound described by props.
func (s *Session) Cache(props *proplist.Proplist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return nil
	}
	if err := s.nctx.Cache(props); err != nil {
		return nativeError("cache", err)
	}
	return nil
}

// ChangeProps merges props into the context properties.
func (s *Session) ChangeProps(props *proplist.Proplist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return nil
	}
	if err := s.nctx.ChangeProps(props); err != nil {
		return nativeError("change props", err)
	}
	return nil
}

// Destroy releases the native context and starts detaching the wake signal.
// Completions queued until the detach finishes are still delivered. Calling
// Destroy again does nothing.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateDestroying
	nctx := s.nctx
	s.nctx = nil
	s.mu.Unlock()

	destroyQuietly(nctx, s.log)
	s.signal.Close(s.finish)
}

// finish runs on the loop once the wake signal is detached.
func (s *Session) finish() {
	for _, r := range s.queue.close() {
		s.deliver(r)
	}
	s.mu.Lock()
	s.state = StateDestroyed
	s.mu.Unlock()
	s.log.Debug().Msg("session destroyed")
	s.Unref()
}

// Ref takes a keep-alive reference.
func (s *Session) Ref() {
	s.refs.Add(1)
}

// Unref drops a keep-alive reference. Dropping more references than were
// taken panics.
func (s *Session) Unref() {
	n := s.refs.Add(-1)
	if n < 0 {
		panic("session: Unref without matching Ref")
	}
	if n == 0 {
		s.releasedOnce.Do(func() { close(s.released) })
	}
}

// Refs returns the current reference count.
func (s *Session) Refs() int {
	return int(s.refs.Load())
}

// Released is closed when the last reference is dropped.
func (s *Session) Released() <-chan struct{} {
	return s.released
}
