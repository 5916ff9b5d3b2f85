package formats

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/sirupsen/logrus"
)

// Source is a decoded PCM stream.
type Source interface {
	// SampleRate of the stream in Hz.
	SampleRate() int
	// Channels in the interleaved stream.
	Channels() int
	// ReadSamples fills dst with interleaved samples in [-1, 1] and returns
	// the number of values written. A finished stream returns 0 and io.EOF.
	ReadSamples(dst []float32) (int, error)
	// Close releases the underlying file, if any.
	Close() error
}

// Format names accepted by Decode.
const (
	FormatWAV    = "wav"
	FormatMP3    = "mp3"
	FormatVorbis = "ogg"
)

// FormatForPath maps a file extension to a format name.
func FormatForPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	case ".ogg", ".oga":
		return FormatVorbis, nil
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnknownFormat, ext)
	}
}

// Decode wraps r in a decoder for format. The returned Source does not
// close r.
func Decode(format string, r io.ReadSeeker) (Source, error) {
	switch format {
	case FormatWAV:
		return DecodeWAV(r)
	case FormatMP3:
		return DecodeMP3(r)
	case FormatVorbis:
		return DecodeVorbis(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Open opens and decodes the file at path, choosing the decoder from the
// extension. Closing the Source closes the file.
func Open(path string) (Source, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("formats: open %q: %w", path, err)
	}
	src, err := Decode(format, f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("formats: decode %q: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "formats.Open",
		"path":        path,
		"format":      format,
		"sample_rate": src.SampleRate(),
		"channels":    src.Channels(),
	}).Debug("Opened audio file")
	return &fileSource{Source: src, file: f}, nil
}

// fileSource closes the file along with the decoder.
type fileSource struct {
	Source
	file *os.File
}

func (s *fileSource) Close() error {
	return errors.Join(s.Source.Close(), s.file.Close())
}

// Streamer adapts a Source to a stereo beep.Streamer.
type Streamer struct {
	src  Source
	buf  []float32
	done bool
	err  error
}

// NewStreamer wraps src.
func NewStreamer(src Source) *Streamer {
	return &Streamer{src: src}
}

// Format describes the stream for beep consumers.
func (s *Streamer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(s.src.SampleRate()),
		NumChannels: 2,
		Precision:   2,
	}
}

// Stream fills samples with stereo pairs. Mono is duplicated to both sides;
// for more than two channels the first two are used.
func (s *Streamer) Stream(samples [][2]float64) (int, bool) {
	if s.done || s.err != nil {
		return 0, false
	}
	ch := s.src.Channels()
	if ch < 1 {
		s.err = ErrNoChannels
		return 0, false
	}

	need := len(samples) * ch
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}
	buf := s.buf[:need]

	n, err := s.src.ReadSamples(buf)
	frames := n / ch
	for i := 0; i < frames; i++ {
		left := float64(buf[i*ch])
		right := left
		if ch > 1 {
			right = float64(buf[i*ch+1])
		}
		samples[i] = [2]float64{left, right}
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
		} else {
			s.err = err
		}
	}
	if frames == 0 {
		return 0, !s.done && s.err == nil
	}
	return frames, true
}

// Err returns the decode error that stopped the stream, if any.
func (s *Streamer) Err() error {
	return s.err
}

var _ beep.Streamer = (*Streamer)(nil)
