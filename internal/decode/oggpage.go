package decode

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	errInvalidOggMagic   = errors.New("ogg: invalid capture pattern")
	errInvalidOggVersion = errors.New("ogg: unsupported version")
	errNoOggPackets      = errors.New("ogg: stream has no packets")
)

// oggPageHeader represents the header of an Ogg page.
type oggPageHeader struct {
	HeaderType   uint8
	GranulePos   int64
	SerialNumber uint32
	SequenceNum  uint32
	SegmentTable []uint8
}

const oggEndOfStream = 0x04

// parseOggPageHeader reads and parses an Ogg page header from the reader.
func parseOggPageHeader(r io.Reader) (*oggPageHeader, error) {
	// Read fixed header (27 bytes)
	var buf [27]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	if string(buf[0:4]) != "OggS" {
		return nil, errInvalidOggMagic
	}
	if buf[4] != 0 {
		return nil, errInvalidOggVersion
	}

	hdr := &oggPageHeader{
		HeaderType:   buf[5],
		GranulePos:   int64(binary.LittleEndian.Uint64(buf[6:14])), //nolint:gosec // granule is a signed field
		SerialNumber: binary.LittleEndian.Uint32(buf[14:18]),
		SequenceNum:  binary.LittleEndian.Uint32(buf[18:22]),
		// checksum at buf[22:26] is not verified
	}

	if n := buf[26]; n > 0 {
		hdr.SegmentTable = make([]uint8, n)
		if _, err := io.ReadFull(r, hdr.SegmentTable); err != nil {
			return nil, err
		}
	}

	return hdr, nil
}

// oggPacketReader yields the packets of the first logical stream in order,
// joining packets that span pages.
type oggPacketReader struct {
	r       io.Reader
	serial  uint32
	locked  bool
	ready   [][]byte
	partial []byte
	done    bool
}

func newOggPacketReader(r io.Reader) *oggPacketReader {
	return &oggPacketReader{r: r}
}

// next returns the next packet, or io.EOF after the last one.
func (p *oggPacketReader) next() ([]byte, error) {
	for len(p.ready) == 0 {
		if p.done {
			return nil, io.EOF
		}
		if err := p.readPage(); err != nil {
			if errors.Is(err, io.EOF) {
				p.done = true
				continue
			}
			return nil, err
		}
	}
	pkt := p.ready[0]
	p.ready = p.ready[1:]
	return pkt, nil
}

func (p *oggPacketReader) readPage() error {
	hdr, err := parseOggPageHeader(p.r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}

	size := 0
	for _, seg := range hdr.SegmentTable {
		size += int(seg)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(p.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}

	if !p.locked {
		p.serial = hdr.SerialNumber
		p.locked = true
	} else if hdr.SerialNumber != p.serial {
		// other logical streams are ignored
		return nil
	}

	// a segment shorter than 255 bytes ends a packet
	off := 0
	for _, seg := range hdr.SegmentTable {
		p.partial = append(p.partial, body[off:off+int(seg)]...)
		off += int(seg)
		if seg < 255 {
			p.ready = append(p.ready, p.partial)
			p.partial = nil
		}
	}

	if hdr.HeaderType&oggEndOfStream != 0 {
		p.done = true
	}
	return nil
}
