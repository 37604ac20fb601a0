// Package decode turns sound files into beep streamers.
package decode

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/wav"

	"github.com/llehouerou/eventsound/internal/sounderr"
)

// Format is a container format recognized by Open.
type Format string

const (
	FormatUnknown Format = ""
	FormatOgg     Format = "ogg"
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatMP3     Format = "mp3"
)

// MaxDuration bounds how much audio Load keeps in memory.
const MaxDuration = 30 * time.Second

var errUnsupported = errors.New("decode: unsupported format")

// FormatForExt maps a file extension to a container format.
func FormatForExt(ext string) Format {
	switch strings.ToLower(ext) {
	case ".oga", ".ogg", ".opus":
		return FormatOgg
	case ".wav", ".wave":
		return FormatWAV
	case ".flac":
		return FormatFLAC
	case ".mp3":
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Sniff identifies a container from its first bytes.
func Sniff(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOgg
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Open decodes the file at path, choosing the decoder by extension and
// falling back to content sniffing.
func Open(path string) (beep.StreamCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, sounderr.Wrap("decode", sounderr.CodeOf(err), err)
	}
	s, format, err := OpenReader(f, FormatForExt(filepath.Ext(path)))
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return s, format, nil
}

// OpenReader decodes rc as hint, or sniffs the format when hint is
// FormatUnknown. Closing the returned streamer closes rc.
func OpenReader(rc io.ReadCloser, hint Format) (beep.StreamCloser, beep.Format, error) {
	br := bufio.NewReader(rc)
	if hint == FormatUnknown {
		head, _ := br.Peek(12)
		hint = Sniff(head)
	}
	r := readCloser{Reader: br, Closer: rc}

	var (
		s      beep.StreamCloser
		format beep.Format
		err    error
	)
	switch hint {
	case FormatOgg:
		s, format, err = decodeOgg(r)
	case FormatWAV:
		s, format, err = wav.Decode(r)
	case FormatFLAC:
		s, format, err = flac.Decode(r)
	case FormatMP3:
		s, format, err = decodeMP3(r)
	default:
		return nil, beep.Format{}, sounderr.Wrap("decode", sounderr.NotSupported, errUnsupported)
	}
	if err != nil {
		return nil, beep.Format{}, sounderr.Wrap("decode", sounderr.Corrupt, err)
	}
	return s, format, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Load decodes the whole file into memory. Sounds longer than maxLen fail
// with TooBig; maxLen <= 0 means MaxDuration.
func Load(path string, maxLen time.Duration) (*beep.Buffer, error) {
	if maxLen <= 0 {
		maxLen = MaxDuration
	}
	s, format, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	limit := format.SampleRate.N(maxLen)
	buf := beep.NewBuffer(format)
	buf.Append(beep.Take(limit, s))
	if err := s.Err(); err != nil {
		return nil, sounderr.Wrap("decode", sounderr.Corrupt, err)
	}
	if buf.Len() >= limit {
		var probe [1][2]float64
		if n, _ := s.Stream(probe[:]); n > 0 {
			return nil, sounderr.Op("decode", sounderr.TooBig)
		}
	}
	return buf, nil
}
