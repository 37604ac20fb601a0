package output

import (
	"github.com/gopxl/beep/v2"
	"github.com/jfreymuth/pulse"
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/proplist"
)

const pulseLatency = 0.05 // seconds

// Pulse plays each voice on its own PulseAudio playback stream.
type Pulse struct {
	client *pulse.Client
	log    zerolog.Logger
	voices voiceSet
}

// Verify Pulse implements Sink at compile time.
var _ Sink = (*Pulse)(nil)

func openPulse(props *proplist.Proplist, log zerolog.Logger) (*Pulse, error) {
	name := props.Get(proplist.ApplicationName)
	if name == "" {
		name = "eventsound"
	}
	client, err := pulse.NewClient(pulse.ClientApplicationName(name))
	if err != nil {
		return nil, err
	}
	return &Pulse{client: client, log: log}, nil
}

func (p *Pulse) Name() string { return DriverPulse }

func (p *Pulse) Start(s beep.Streamer, f beep.Format, props *proplist.Proplist, done func(error)) (Voice, error) {
	v := newVoice(done)
	if !p.voices.add(v) {
		return nil, errSinkClosed
	}
	st := &stoppable{s: s, v: v}

	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(int(f.SampleRate)),
		pulse.PlaybackStereo,
		pulse.PlaybackLatency(pulseLatency),
	}
	if name := props.Get(proplist.MediaName); name != "" {
		opts = append(opts, pulse.PlaybackMediaName(name))
	} else if id := props.Get(proplist.EventID); id != "" {
		opts = append(opts, pulse.PlaybackMediaName(id))
	}

	stream, err := p.client.NewPlayback(pulse.Float32Reader(float32Reader(st)), opts...)
	if err != nil {
		v.done = nil
		v.finish(nil)
		return nil, err
	}

	go func() {
		stream.Start()
		stream.Drain()
		err := stream.Error()
		if err == nil {
			err = st.Err()
		}
		stream.Close()
		p.log.Debug().Err(err).Bool("stopped", v.stopped.Load()).Msg("pulse stream ended")
		v.finish(err)
	}()
	return v, nil
}

// float32Reader pulls interleaved stereo frames from a beep streamer.
func float32Reader(s beep.Streamer) func([]float32) (int, error) {
	buf := make([][2]float64, 512)
	return func(out []float32) (int, error) {
		frames := min(len(out)/2, len(buf))
		n, ok := s.Stream(buf[:frames])
		if !ok && n == 0 {
			return 0, pulse.EndOfData
		}
		idx := 0
		for i := range n {
			out[idx] = float32(buf[i][0])
			out[idx+1] = float32(buf[i][1])
			idx += 2
		}
		return idx, nil
	}
}

// Close stops every voice, waits for their streams to drain and disconnects.
func (p *Pulse) Close() error {
	p.voices.close()
	p.voices.wait()
	p.client.Close()
	return nil
}
