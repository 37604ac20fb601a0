package output

import (
	"github.com/gopxl/beep/v2"

	"github.com/llehouerou/eventsound/internal/proplist"
)

// Null consumes streams as fast as it can without producing sound.
type Null struct {
	voices voiceSet
}

// Verify Null implements Sink at compile time.
var _ Sink = (*Null)(nil)

func NewNull() *Null {
	return &Null{}
}

func (n *Null) Name() string { return DriverNull }

func (n *Null) Start(s beep.Streamer, _ beep.Format, _ *proplist.Proplist, done func(error)) (Voice, error) {
	v := newVoice(done)
	if !n.voices.add(v) {
		return nil, errSinkClosed
	}
	st := &stoppable{s: s, v: v}
	go func() {
		buf := make([][2]float64, 512)
		for {
			if _, ok := st.Stream(buf); !ok {
				break
			}
		}
		v.finish(st.Err())
	}()
	return v, nil
}

// Active returns the number of voices still running.
func (n *Null) Active() int {
	return n.voices.len()
}

func (n *Null) Close() error {
	n.voices.close()
	n.voices.wait()
	return nil
}
