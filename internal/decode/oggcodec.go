package decode

import (
	"encoding/binary"
	"errors"

	"github.com/jfreymuth/vorbis"
	"github.com/jj11hh/opus"
)

const opusSampleRate = 48000

var (
	errUnknownOggCodec             = errors.New("ogg: unknown codec (not Opus or Vorbis)")
	errInvalidVorbisHeader         = errors.New("vorbis: invalid identification header")
	errInvalidOpusHead             = errors.New("opus: invalid OpusHead")
	errUnsupportedOpus             = errors.New("opus: unsupported version")
	errVorbisDecoderNotInitialized = errors.New("vorbis: decoder not initialized (headers incomplete)")
	errVorbisBufferTooSmall        = errors.New("vorbis: output buffer too small")
)

// oggCodec handles codec-specific initialization and decoding for Ogg streams.
type oggCodec interface {
	SampleRate() int
	Channels() int

	// PreSkip returns samples per channel to drop at stream start.
	PreSkip() int

	// AddHeaderPacket feeds a header packet. It reports true once every
	// header has been received and audio packets may follow.
	AddHeaderPacket(packet []byte) (complete bool, err error)

	// Decode decodes a packet into interleaved PCM and returns the number of
	// samples per channel.
	Decode(packet []byte, pcm []float32) (samplesPerChannel int, err error)
}

// detectOggCodec detects the codec from the first Ogg packet.
func detectOggCodec(firstPacket []byte) (oggCodec, error) {
	if len(firstPacket) >= 8 && string(firstPacket[:8]) == "OpusHead" {
		return newOpusCodec(firstPacket)
	}
	if len(firstPacket) >= 7 && firstPacket[0] == 0x01 && string(firstPacket[1:7]) == "vorbis" {
		return newVorbisCodec(firstPacket)
	}
	return nil, errUnknownOggCodec
}

type opusCodec struct {
	decoder  *opus.Decoder
	channels int
	preSkip  int
}

func newOpusCodec(packet []byte) (*opusCodec, error) {
	if len(packet) < 19 {
		return nil, errInvalidOpusHead
	}
	if packet[8] != 1 {
		return nil, errUnsupportedOpus
	}

	channels := int(packet[9])
	decoder, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, err
	}

	return &opusCodec{
		decoder:  decoder,
		channels: channels,
		preSkip:  int(binary.LittleEndian.Uint16(packet[10:12])),
	}, nil
}

// SampleRate is always 48 kHz; the header rate is informational.
func (c *opusCodec) SampleRate() int { return opusSampleRate }

func (c *opusCodec) Channels() int { return c.channels }

func (c *opusCodec) PreSkip() int { return c.preSkip }

// AddHeaderPacket consumes the OpusTags packet that follows OpusHead.
func (c *opusCodec) AddHeaderPacket(_ []byte) (bool, error) {
	return true, nil
}

func (c *opusCodec) Decode(packet []byte, pcm []float32) (int, error) {
	return c.decoder.DecodeFloat32(packet, pcm)
}

type vorbisCodec struct {
	decoder       *vorbis.Decoder
	channels      int
	sampleRate    int
	headerPackets [][]byte
}

func newVorbisCodec(packet []byte) (*vorbisCodec, error) {
	// [0] packet type, [1:7] "vorbis", [7:11] version, [11] channels,
	// [12:16] sample rate
	if len(packet) < 16 {
		return nil, errInvalidVorbisHeader
	}
	if binary.LittleEndian.Uint32(packet[7:11]) != 0 {
		return nil, errInvalidVorbisHeader
	}

	return &vorbisCodec{
		channels:      int(packet[11]),
		sampleRate:    int(binary.LittleEndian.Uint32(packet[12:16])),
		headerPackets: [][]byte{packet},
	}, nil
}

func (c *vorbisCodec) SampleRate() int { return c.sampleRate }

func (c *vorbisCodec) Channels() int { return c.channels }

func (c *vorbisCodec) PreSkip() int { return 0 }

// AddHeaderPacket collects the comment and setup headers, then initializes
// the decoder.
func (c *vorbisCodec) AddHeaderPacket(packet []byte) (bool, error) {
	if c.decoder != nil {
		return true, nil
	}
	c.headerPackets = append(c.headerPackets, packet)
	if len(c.headerPackets) < 3 {
		return false, nil
	}

	decoder := &vorbis.Decoder{}
	for _, hdr := range c.headerPackets {
		if err := decoder.ReadHeader(hdr); err != nil {
			return false, err
		}
	}
	c.decoder = decoder
	c.headerPackets = nil
	return true, nil
}

func (c *vorbisCodec) Decode(packet []byte, pcm []float32) (int, error) {
	if c.decoder == nil {
		return 0, errVorbisDecoderNotInitialized
	}
	samples, err := c.decoder.Decode(packet)
	if err != nil {
		return 0, err
	}
	if len(pcm) < len(samples) {
		return 0, errVorbisBufferTooSmall
	}
	n := copy(pcm, samples)
	return n / c.channels, nil
}
