package formats

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavPCM is the WAVE format tag for integer PCM.
const wavPCM = 1

// pcmReader is the part of wav.Decoder the source needs.
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type wavSource struct {
	dec        pcmReader
	format     *goaudio.Format
	sampleRate int
	channels   int
	scale      float32
	offset     int
	intBuf     *goaudio.IntBuffer
}

// DecodeWAV reads the header of an integer PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("wav header: %w", err)
	}
	if dec.WavAudioFormat != wavPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, dec.WavAudioFormat)
	}
	scale, ok := fullScale(int(dec.BitDepth))
	if !ok {
		return nil, fmt.Errorf("%w: %d-bit", ErrUnsupportedEncoding, dec.BitDepth)
	}
	if dec.NumChans == 0 {
		return nil, ErrNoChannels
	}

	src := &wavSource{
		dec:        dec,
		format:     dec.Format(),
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		scale:      scale,
	}
	// 8-bit WAV is unsigned.
	if dec.BitDepth == 8 {
		src.offset = 128
	}
	return src, nil
}

// fullScale returns the magnitude of the most negative sample for a depth.
func fullScale(bitDepth int) (float32, bool) {
	switch bitDepth {
	case 8:
		return 128, true
	case 16:
		return 32768, true
	case 24:
		return 8388608, true
	case 32:
		return 2147483648, true
	default:
		return 0, false
	}
}

func (s *wavSource) SampleRate() int { return s.sampleRate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: s.format,
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("wav read: %w", err)
		}
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(s.intBuf.Data[i]-s.offset) / s.scale
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// WAVWriter writes 16-bit stereo PCM.
type WAVWriter struct {
	enc    *wav.Encoder
	closer io.Closer
	buf    *goaudio.IntBuffer
	frames int
}

// NewWAVWriter starts a 16-bit stereo WAV stream on w. The header is
// finalised by Close, which does not close w.
func NewWAVWriter(w io.WriteSeeker, sampleRate int) *WAVWriter {
	return &WAVWriter{
		enc: wav.NewEncoder(w, sampleRate, 16, 2, wavPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}
}

// Write appends one block of left and right samples, clamped to [-1, 1].
func (w *WAVWriter) Write(left, right []float64) error {
	if len(left) != len(right) {
		return fmt.Errorf("wav write: %d left and %d right samples", len(left), len(right))
	}
	n := len(left)
	if cap(w.buf.Data) < 2*n {
		w.buf.Data = make([]int, 2*n)
	}
	w.buf.Data = w.buf.Data[:2*n]
	for i := 0; i < n; i++ {
		w.buf.Data[2*i] = toPCM16(left[i])
		w.buf.Data[2*i+1] = toPCM16(right[i])
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	w.frames += n
	return nil
}

// WriteSamples appends stereo pairs.
func (w *WAVWriter) WriteSamples(samples [][2]float64) error {
	n := len(samples)
	if cap(w.buf.Data) < 2*n {
		w.buf.Data = make([]int, 2*n)
	}
	w.buf.Data = w.buf.Data[:2*n]
	for i, pair := range samples {
		w.buf.Data[2*i] = toPCM16(pair[0])
		w.buf.Data[2*i+1] = toPCM16(pair[1])
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	w.frames += n
	return nil
}

// Frames returns the number of stereo pairs written.
func (w *WAVWriter) Frames() int {
	return w.frames
}

// Close writes the final header sizes.
func (w *WAVWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

func toPCM16(v float64) int {
	v = math.Max(-1, math.Min(1, v))
	return int(math.Round(v * 32767))
}
