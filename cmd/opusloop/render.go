package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opd-ai/opusloop"
	"github.com/opd-ai/opusloop/config"
	"github.com/opd-ai/opusloop/formats"
	"github.com/opd-ai/opusloop/metrics"
	"github.com/opd-ai/opusloop/stream"
	"github.com/sirupsen/logrus"
)

// tailFrames is how many frames of silence follow each input so the
// round trip's buffered audio reaches the output.
const tailFrames = 3

// renderResult summarises one rendered file.
type renderResult struct {
	In      string
	Out     string
	Frames  int
	Latency int
	Stats   opusloop.Stats
}

// outputPath maps in.ext to <dir>/in.opus.wav. An empty dir keeps the
// input's directory.
func outputPath(in, dir string) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ".opus.wav"
	if dir == "" {
		dir = filepath.Dir(in)
	}
	return filepath.Join(dir, base)
}

// renderFile decodes in, runs it through a fresh Processor and writes the
// result to out as 16-bit stereo WAV.
func renderFile(ctx context.Context, cfg *config.Config, in, out string) (result renderResult, err error) {
	result = renderResult{In: in, Out: out}
	logger := logrus.WithFields(logrus.Fields{
		"function": "renderFile",
		"in":       in,
		"out":      out,
	})

	src, err := formats.Open(in)
	if err != nil {
		return result, err
	}
	defer src.Close()

	opts, err := cfg.Options()
	if err != nil {
		return result, err
	}
	opts.Metrics = metrics.DefaultMetrics()

	rate := src.SampleRate()
	proc, err := opusloop.New(float64(rate), opts)
	if err != nil {
		return result, fmt.Errorf("render %q: %w", in, err)
	}
	defer func() {
		err = errors.Join(err, proc.Close())
	}()

	latency, latErr := proc.Latency()
	if latErr != nil {
		logger.WithField("error", latErr.Error()).Warn("Latency unavailable, flushing frames only")
	}
	result.Latency = latency
	tail := latency + tailFrames*proc.Params().Frame.Samples(rate)

	f, err := os.Create(out)
	if err != nil {
		return result, fmt.Errorf("render %q: %w", in, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	w := formats.NewWAVWriter(f, rate)

	s := stream.New(formats.NewStreamer(src), proc, stream.WithTail(tail))
	buf := make([][2]float64, cfg.Render.BlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, ok := s.Stream(buf)
		if n > 0 {
			if err := w.WriteSamples(buf[:n]); err != nil {
				return result, err
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return result, fmt.Errorf("render %q: %w", in, err)
	}
	if err := w.Close(); err != nil {
		return result, err
	}

	result.Frames = w.Frames()
	result.Stats = proc.Stats()
	logger.WithFields(logrus.Fields{
		"sample_rate":    rate,
		"frames":         result.Frames,
		"latency":        result.Latency,
		"frames_encoded": result.Stats.FramesEncoded,
		"frames_dropped": result.Stats.FramesDropped,
		"underruns":      result.Stats.UnderrunSamples,
		"packet_bytes":   result.Stats.PacketBytes,
	}).Info("Rendered file")
	return result, nil
}
