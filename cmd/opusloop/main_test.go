package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/opusloop/config"
	"github.com/opd-ai/opusloop/factory"
	"github.com/opd-ai/opusloop/formats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate   = 48000
	testFrame  = 960
	testFrames = 2000
)

// writeConstant writes a stereo WAV holding left and right for n frames.
func writeConstant(t *testing.T, path string, n int, left, right float64) {
	t.Helper()
	l := make([]float64, n)
	r := make([]float64, n)
	for i := range l {
		l[i], r[i] = left, right
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	w := formats.NewWAVWriter(f, testRate)
	require.NoError(t, w.Write(l, r))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// readAll decodes a stereo file into interleaved samples.
func readAll(t *testing.T, path string) []float32 {
	t.Helper()
	src, err := formats.Open(path)
	require.NoError(t, err)
	defer src.Close()
	require.Equal(t, 2, src.Channels())

	var out []float32
	buf := make([]float32, 1024)
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
	}
}

func loopbackConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.Name = factory.EngineLoopback
	cfg.Render.BlockSize = 256
	return cfg
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		dir  string
		want string
	}{
		{"next to input", filepath.Join("a", "b", "take.mp3"), "", filepath.Join("a", "b", "take.opus.wav")},
		{"out dir", filepath.Join("a", "take.wav"), "out", filepath.Join("out", "take.opus.wav")},
		{"no extension", "take", "", "take.opus.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputPath(tt.in, tt.dir))
		})
	}
}

func TestRenderFileDelaysAndFlushes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeConstant(t, in, testFrames, 0.5, -0.25)

	result, err := renderFile(context.Background(), loopbackConfig(), in, out)
	require.NoError(t, err)

	assert.Positive(t, result.Latency)
	assert.Equal(t, testFrames+result.Latency+tailFrames*testFrame, result.Frames)
	assert.Positive(t, result.Stats.FramesEncoded)
	assert.Zero(t, result.Stats.FramesDropped)

	samples := readAll(t, out)
	require.Len(t, samples, 2*result.Frames)

	// The loopback round trip delays by two frames less one sample.
	delay := 2*testFrame - 1
	for i := 0; i < delay; i++ {
		require.Zero(t, samples[2*i], "left %d", i)
	}
	for i := delay; i < delay+testFrames; i++ {
		require.InDelta(t, 0.5, samples[2*i], 1e-3, "left %d", i)
		require.InDelta(t, -0.25, samples[2*i+1], 1e-3, "right %d", i)
	}
}

func TestRenderFileBypass(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeConstant(t, in, 100, 0.5, 0.5)

	cfg := loopbackConfig()
	cfg.Codec.Bypass = true
	result, err := renderFile(context.Background(), cfg, in, out)
	require.NoError(t, err)
	assert.Zero(t, result.Stats.FramesEncoded)

	samples := readAll(t, out)
	for i := 0; i < 100; i++ {
		require.InDelta(t, 0.5, samples[2*i], 1e-3)
	}
}

func TestRenderFileErrors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeConstant(t, in, 10, 0, 0)

	t.Run("missing input", func(t *testing.T) {
		_, err := renderFile(context.Background(), loopbackConfig(), filepath.Join(dir, "nope.wav"), filepath.Join(dir, "o.wav"))
		assert.Error(t, err)
	})

	t.Run("unknown engine", func(t *testing.T) {
		cfg := loopbackConfig()
		cfg.Engine.Name = "speex"
		_, err := renderFile(context.Background(), cfg, in, filepath.Join(dir, "o.wav"))
		assert.ErrorIs(t, err, factory.ErrUnknownEngine)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := renderFile(ctx, loopbackConfig(), in, filepath.Join(dir, "o.wav"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "song.wav")
	writeConstant(t, in, 500, 0.1, 0.1)
	outDir := filepath.Join(dir, "rendered")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"renders", []string{"-engine", "loopback", "-out", outDir, "-log-level", "error", in}, 0},
		{"no files", []string{"-engine", "loopback"}, 2},
		{"bad flag", []string{"-nope"}, 2},
		{"help", []string{"-h"}, 0},
		{"unknown engine", []string{"-engine", "speex", in}, 1},
		{"bad frame size", []string{"-engine", "loopback", "-frame-ms", "7", in}, 1},
		{"missing config", []string{"-config", filepath.Join(dir, "none.yaml"), in}, 1},
		{"missing input", []string{"-engine", "loopback", "-out", outDir, filepath.Join(dir, "gone.wav")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			assert.Equal(t, tt.want, run(context.Background(), tt.args, &stderr), stderr.String())
		})
	}

	_, err := os.Stat(filepath.Join(outDir, "song.opus.wav"))
	assert.NoError(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opusloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codec:\n  bitrate: 24000\nrender:\n  workers: 2\n"), 0o644))

	cfg, err := loadConfig(&flags{configPath: path, engine: "loopback", blockSize: 128, bypass: true})
	require.NoError(t, err)
	assert.Equal(t, 24000, cfg.Codec.Bitrate)
	assert.Equal(t, 2, cfg.Render.Workers)
	assert.Equal(t, factory.EngineLoopback, cfg.Engine.Name)
	assert.Equal(t, 128, cfg.Render.BlockSize)
	assert.True(t, cfg.Codec.Bypass)
}
