package formats

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// oggReader is the part of oggvorbis.Reader the source needs. Read returns
// the number of float values decoded, always a multiple of Channels.
type oggReader interface {
	Read([]float32) (int, error)
	SampleRate() int
	Channels() int
}

type vorbisSource struct {
	dec oggReader
}

// DecodeVorbis starts decoding an Ogg Vorbis stream.
func DecodeVorbis(r io.Reader) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("vorbis: %w", err)
	}
	return &vorbisSource{dec: dec}, nil
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }
func (s *vorbisSource) Close() error    { return nil }

func (s *vorbisSource) ReadSamples(dst []float32) (int, error) {
	ch := s.dec.Channels()
	if ch < 1 {
		return 0, ErrNoChannels
	}
	// Whole frames only.
	dst = dst[:len(dst)-len(dst)%ch]
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("vorbis read: %w", err)
	}
	if n == 0 && err == io.EOF {
		return 0, io.EOF
	}
	return n, nil
}
