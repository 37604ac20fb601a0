package decode

import (
	"errors"
	"io"

	"github.com/gopxl/beep/v2"
)

// decodeOgg decodes an Ogg stream (Opus or Vorbis) into a beep streamer.
func decodeOgg(rc io.ReadCloser) (beep.StreamCloser, beep.Format, error) {
	pr := newOggPacketReader(rc)

	first, err := pr.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errNoOggPackets
		}
		return nil, beep.Format{}, err
	}
	codec, err := detectOggCodec(first)
	if err != nil {
		return nil, beep.Format{}, err
	}

	for complete := false; !complete; {
		pkt, err := pr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, beep.Format{}, err
		}
		if complete, err = codec.AddHeaderPacket(pkt); err != nil {
			return nil, beep.Format{}, err
		}
	}

	channels := codec.Channels()
	if channels < 1 {
		return nil, beep.Format{}, errors.New("ogg: stream has no channels")
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(codec.SampleRate()),
		NumChannels: min(channels, 2),
		Precision:   2,
	}

	d := &oggDecoder{
		packets:   pr,
		codec:     codec,
		closer:    rc,
		pcmBuffer: make([]float32, 8192*channels),
		skip:      codec.PreSkip(),
	}
	d.pcmPos = len(d.pcmBuffer) // empty buffer triggers refill

	return d, format, nil
}

// oggDecoder implements beep.StreamCloser for Ogg streams. Streams with more
// than two channels are reduced to their first two.
type oggDecoder struct {
	packets *oggPacketReader
	codec   oggCodec
	closer  io.Closer

	pcmBuffer []float32
	pcmPos    int
	skip      int // samples per channel still to drop
	err       error
	eof       bool
}

// Stream reads audio samples into the provided buffer.
func (d *oggDecoder) Stream(samples [][2]float64) (n int, ok bool) {
	if d.err != nil {
		return 0, false
	}

	channels := d.codec.Channels()

	for n < len(samples) {
		if d.pcmPos < len(d.pcmBuffer) {
			for n < len(samples) && d.pcmPos < len(d.pcmBuffer) {
				left := float64(d.pcmBuffer[d.pcmPos])
				right := left
				if channels > 1 {
					right = float64(d.pcmBuffer[d.pcmPos+1])
				}
				d.pcmPos += channels
				if d.skip > 0 {
					d.skip--
					continue
				}
				samples[n][0] = left
				samples[n][1] = right
				n++
			}
			continue
		}

		if d.eof {
			return n, n > 0
		}
		packet, err := d.packets.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				return n, n > 0
			}
			d.err = err
			return n, n > 0
		}

		samplesPerChannel, err := d.codec.Decode(packet, d.pcmBuffer[:cap(d.pcmBuffer)])
		if err != nil {
			continue // skip invalid packets
		}
		d.pcmBuffer = d.pcmBuffer[:samplesPerChannel*channels]
		d.pcmPos = 0
	}

	return n, true
}

// Err returns any error that occurred during streaming.
func (d *oggDecoder) Err() error { return d.err }

// Close closes the decoder and underlying reader.
func (d *oggDecoder) Close() error {
	return d.closer.Close()
}
