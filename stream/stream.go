// Package stream plays any beep.Streamer through an opusloop processor.
//
// The adapter pulls stereo samples from its source, runs them through the
// processor block by block and hands the processed samples on, so an Opus
// round trip can sit anywhere in a beep pipeline. Because the round trip
// delays audio by about two frames, a tail of silence can be fed after the
// source ends to flush the buffered audio.
package stream

import (
	"fmt"

	"github.com/gopxl/beep"
	"github.com/sirupsen/logrus"
)

// Processor is the block-processing half of opusloop.Processor.
type Processor interface {
	Process(inL, inR, outL, outR []float64) error
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithTail feeds n samples of silence after the source is drained.
func WithTail(n int) Option {
	return func(s *Streamer) {
		if n > 0 {
			s.tail = n
		}
	}
}

// Streamer is a beep.Streamer wrapping a source and a Processor.
type Streamer struct {
	src     beep.Streamer
	proc    Processor
	tail    int
	drained bool
	err     error

	inL, inR, outL, outR []float64
}

// New wraps src. The processor must not be driven by anything else while
// the Streamer is in use.
func New(src beep.Streamer, proc Processor, opts ...Option) *Streamer {
	s := &Streamer{src: src, proc: proc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream fills samples with processed audio. It reports ok=false once the
// source and the tail are exhausted or an error occurred.
func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.err != nil {
		return 0, false
	}

	if !s.drained {
		var more bool
		n, more = s.src.Stream(samples)
		if !more {
			s.drained = true
			n = 0
			if err := s.src.Err(); err != nil {
				s.err = fmt.Errorf("stream source: %w", err)
				return 0, false
			}
		}
	}

	if s.drained && n < len(samples) && s.tail > 0 {
		extra := min(len(samples)-n, s.tail)
		clear(samples[n : n+extra])
		n += extra
		s.tail -= extra
	}

	if n == 0 {
		return 0, !s.drained
	}
	if err := s.process(samples[:n]); err != nil {
		s.err = err
		logrus.WithFields(logrus.Fields{
			"function": "Streamer.Stream",
			"error":    err.Error(),
		}).Error("Processing failed, stopping stream")
		return 0, false
	}
	return n, true
}

func (s *Streamer) process(samples [][2]float64) error {
	n := len(samples)
	if cap(s.inL) < n {
		s.inL = make([]float64, n)
		s.inR = make([]float64, n)
		s.outL = make([]float64, n)
		s.outR = make([]float64, n)
	}
	inL, inR, outL, outR := s.inL[:n], s.inR[:n], s.outL[:n], s.outR[:n]

	for i, pair := range samples {
		inL[i], inR[i] = pair[0], pair[1]
	}
	if err := s.proc.Process(inL, inR, outL, outR); err != nil {
		return fmt.Errorf("stream process: %w", err)
	}
	for i := range samples {
		samples[i] = [2]float64{outL[i], outR[i]}
	}
	return nil
}

// Err returns the error that stopped the stream, if any.
func (s *Streamer) Err() error {
	return s.err
}

var _ beep.Streamer = (*Streamer)(nil)
