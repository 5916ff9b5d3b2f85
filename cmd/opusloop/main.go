// Command opusloop renders audio files through an Opus encode/decode round
// trip so the codec's artefacts can be auditioned offline.
//
// Usage:
//
//	opusloop [-config opusloop.yaml] [-out dir] [-engine libopus] file.wav ...
//
// Each input is written as <name>.opus.wav, 16-bit stereo at the input's
// sample rate. Files render concurrently, bounded by render.workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/opusloop/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// flags are command-line overrides of the configuration file.
type flags struct {
	configPath string
	outDir     string
	engine     string
	logLevel   string
	blockSize  int
	workers    int
	bitrate    int
	frameMs    float64
	bypass     bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, []string, error) {
	fs := flag.NewFlagSet("opusloop", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&f.outDir, "out", "", "directory for rendered files (default: next to each input)")
	fs.StringVar(&f.engine, "engine", "", "Opus engine: libopus or loopback")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.IntVar(&f.blockSize, "block", 0, "samples per processing block")
	fs.IntVar(&f.workers, "workers", 0, "files rendered at once")
	fs.IntVar(&f.bitrate, "bitrate", 0, "encoder bitrate in bits per second")
	fs.Float64Var(&f.frameMs, "frame-ms", 0, "frame duration: 2.5, 5, 10, 20, 40 or 60")
	fs.BoolVar(&f.bypass, "bypass", false, "copy input to output without coding")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: opusloop [flags] file ...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// loadConfig reads the configuration file, if any, and applies overrides.
func loadConfig(f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.outDir != "" {
		cfg.Render.OutDir = f.outDir
	}
	if f.engine != "" {
		cfg.Engine.Name = f.engine
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.blockSize != 0 {
		cfg.Render.BlockSize = f.blockSize
	}
	if f.workers != 0 {
		cfg.Render.Workers = f.workers
	}
	if f.bitrate != 0 {
		cfg.Codec.Bitrate = f.bitrate
	}
	if f.frameMs != 0 {
		cfg.Codec.FrameMs = f.frameMs
	}
	if f.bypass {
		cfg.Codec.Bypass = true
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	f, files, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if len(files) == 0 {
		fmt.Fprintln(stderr, "opusloop: no input files")
		return 2
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stderr, "opusloop: %v\n", err)
		return 1
	}
	level, _ := cfg.Level()
	logrus.SetLevel(level)

	logger := logrus.WithFields(logrus.Fields{
		"function": "run",
		"engine":   cfg.Engine.Name,
		"bitrate":  cfg.Codec.Bitrate,
		"frame_ms": cfg.Codec.FrameMs,
		"files":    len(files),
	})
	logger.Info("Rendering")

	if cfg.Render.OutDir != "" {
		if err := os.MkdirAll(cfg.Render.OutDir, 0o755); err != nil {
			logger.WithField("error", err.Error()).Error("Cannot create output directory")
			return 1
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Render.Workers)
	for _, in := range files {
		in := in
		g.Go(func() error {
			_, err := renderFile(gctx, cfg, in, outputPath(in, cfg.Render.OutDir))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.WithField("error", err.Error()).Error("Rendering failed")
		return 1
	}

	logger.Info("Rendering complete")
	return 0
}
