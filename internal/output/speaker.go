package output

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/proplist"
)

// SpeakerRate is the rate the shared speaker runs at.
const SpeakerRate beep.SampleRate = 44100

// The speaker is process wide and initialized once.
var (
	speakerMu   sync.Mutex
	speakerInit bool
)

// Speaker mixes voices into beep's speaker.
type Speaker struct {
	log    zerolog.Logger
	voices voiceSet
}

// Verify Speaker implements Sink at compile time.
var _ Sink = (*Speaker)(nil)

func openSpeaker(log zerolog.Logger) (*Speaker, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if !speakerInit {
		if err := speaker.Init(SpeakerRate, SpeakerRate.N(time.Second/10)); err != nil {
			return nil, err
		}
		speakerInit = true
	}
	return &Speaker{log: log}, nil
}

func (s *Speaker) Name() string { return DriverSpeaker }

func (s *Speaker) Start(st beep.Streamer, f beep.Format, _ *proplist.Proplist, done func(error)) (Voice, error) {
	v := newVoice(done)
	if !s.voices.add(v) {
		return nil, errSinkClosed
	}

	// Resample if the sound's rate differs from the speaker's
	var play beep.Streamer = st
	if f.SampleRate != SpeakerRate {
		play = beep.Resample(4, f.SampleRate, SpeakerRate, st)
	}
	ctrl := &stoppable{s: play, v: v}

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		// runs on the speaker goroutine with the speaker locked
		go v.finish(ctrl.Err())
	})))
	return v, nil
}

// Close stops every voice and waits for the speaker to drop them.
func (s *Speaker) Close() error {
	s.voices.close()
	s.voices.wait()
	return nil
}
