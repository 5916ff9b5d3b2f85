package formats

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// mp3Reader is the part of go-mp3's Decoder the source needs. go-mp3 always
// produces 16-bit little-endian stereo.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
}

type mp3Source struct {
	dec mp3Reader
	buf []byte
}

// DecodeMP3 starts decoding an MP3 stream.
func DecodeMP3(r io.Reader) (Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	return &mp3Source{dec: dec}, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return 2 }
func (s *mp3Source) Close() error    { return nil }

func (s *mp3Source) ReadSamples(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.dec, buf)
	samples := n / 2
	for i := 0; i < samples; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768
	}
	switch {
	case err == nil:
		return samples, nil
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		if samples == 0 {
			return 0, io.EOF
		}
		return samples, nil
	default:
		return samples, fmt.Errorf("mp3 read: %w", err)
	}
}
