// Package output hands decoded sounds to an audio device.
package output

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/sounderr"
)

// Driver names accepted by Open.
const (
	DriverAuto    = "auto"
	DriverPulse   = "pulse"
	DriverSpeaker = "speaker"
	DriverNull    = "null"
)

// Voice is one sound being played.
type Voice interface {
	Stop()
}

// Sink plays streamers. done is called exactly once per started voice, from
// a sink goroutine: nil when the sound ran out, a Canceled error after Stop,
// or the streamer's error.
type Sink interface {
	Name() string
	Start(s beep.Streamer, f beep.Format, props *proplist.Proplist, done func(error)) (Voice, error)
	Close() error
}

var errSinkClosed = errors.New("output: sink closed")

// Replaced in tests.
var (
	dialPulse   = openPulse
	dialSpeaker = openSpeaker
)

// Open returns the sink for driver. "auto" (or "") tries pulse, then
// speaker.
func Open(driver string, props *proplist.Proplist, log zerolog.Logger) (Sink, error) {
	switch strings.ToLower(driver) {
	case DriverPulse:
		return wrapOpen(dialPulse(props, log))
	case DriverSpeaker:
		return wrapOpen(dialSpeaker(log))
	case DriverNull:
		return NewNull(), nil
	case DriverAuto, "":
		p, err := dialPulse(props, log)
		if err == nil {
			return p, nil
		}
		log.Debug().Err(err).Msg("pulse unavailable, trying speaker")
		sp, err := dialSpeaker(log)
		if err == nil {
			return sp, nil
		}
		return nil, sounderr.Wrap("open", sounderr.NoDriver, err)
	default:
		return nil, sounderr.Op("open", sounderr.NoDriver)
	}
}

func wrapOpen(s Sink, err error) (Sink, error) {
	if err != nil {
		return nil, sounderr.Wrap("open", sounderr.NoDriver, err)
	}
	return s, nil
}

// voice carries the bookkeeping shared by every sink.
type voice struct {
	stopped atomic.Bool
	once    sync.Once
	done    func(error)
	onEnd   func(*voice)
}

func newVoice(done func(error)) *voice {
	return &voice{done: done}
}

func (v *voice) Stop() {
	v.stopped.Store(true)
}

// finish reports the end of the voice once. A stopped voice always reports
// Canceled.
func (v *voice) finish(err error) {
	v.once.Do(func() {
		if v.stopped.Load() {
			err = sounderr.New(sounderr.Canceled)
		}
		if v.onEnd != nil {
			v.onEnd(v)
		}
		if v.done != nil {
			v.done(err)
		}
	})
}

// stoppable ends the wrapped streamer as soon as its voice is stopped.
type stoppable struct {
	s beep.Streamer
	v *voice
}

func (st *stoppable) Stream(samples [][2]float64) (int, bool) {
	if st.v.stopped.Load() {
		return 0, false
	}
	return st.s.Stream(samples)
}

func (st *stoppable) Err() error {
	return st.s.Err()
}

// voiceSet tracks the live voices of a sink so Close can end them.
type voiceSet struct {
	mu     sync.Mutex
	voices map[*voice]struct{}
	closed bool
	wg     sync.WaitGroup
}

func (vs *voiceSet) add(v *voice) bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.closed {
		return false
	}
	if vs.voices == nil {
		vs.voices = make(map[*voice]struct{})
	}
	vs.voices[v] = struct{}{}
	vs.wg.Add(1)
	v.onEnd = vs.remove
	return true
}

func (vs *voiceSet) remove(v *voice) {
	vs.mu.Lock()
	delete(vs.voices, v)
	vs.mu.Unlock()
	vs.wg.Done()
}

// close marks the set closed and stops every live voice. It returns the
// voices that were live.
func (vs *voiceSet) close() []*voice {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.closed {
		return nil
	}
	vs.closed = true
	out := make([]*voice, 0, len(vs.voices))
	for v := range vs.voices {
		v.Stop()
		out = append(out, v)
	}
	return out
}

func (vs *voiceSet) wait() {
	vs.wg.Wait()
}

func (vs *voiceSet) len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.voices)
}
