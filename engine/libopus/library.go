//go:build (linux && (amd64 || arm64)) || (darwin && amd64)

package libopus

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"
)

// EnvLibrary names an explicit libopus shared object to load first.
const EnvLibrary = "OPUSLOOP_LIBOPUS"

var (
	loadOnce sync.Once
	loadErr  error
	handle   uintptr
)

// libopus entry points. opus_encoder_ctl and opus_decoder_ctl are variadic;
// on the platforms this file builds for a single trailing integer or
// pointer argument travels in the same register as a fixed one, so each
// is bound twice with a concrete signature.
var (
	opusEncoderCreate  func(fs, channels, application int32, errOut unsafe.Pointer) uintptr
	opusEncoderDestroy func(st uintptr)
	opusEncodeFloat    func(st uintptr, pcm unsafe.Pointer, frameSize int32, data unsafe.Pointer, maxBytes int32) int32
	opusEncoderCtlSet  func(st uintptr, request, value int32) int32
	opusEncoderCtlGet  func(st uintptr, request int32, out unsafe.Pointer) int32

	opusDecoderCreate  func(fs, channels int32, errOut unsafe.Pointer) uintptr
	opusDecoderDestroy func(st uintptr)
	opusDecodeFloat    func(st uintptr, data unsafe.Pointer, length int32, pcm unsafe.Pointer, frameSize, decodeFEC int32) int32
	opusDecoderCtlSet  func(st uintptr, request, value int32) int32

	opusStrerror         func(code int32) string
	opusGetVersionString func() string
)

// libraryPaths lists the shared objects tried in order.
func libraryPaths() []string {
	var paths []string
	if p := os.Getenv(EnvLibrary); p != "" {
		paths = append(paths, p)
	}
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			"libopus.0.dylib",
			"/usr/local/lib/libopus.0.dylib",
			"/opt/homebrew/lib/libopus.0.dylib",
		)
	default:
		paths = append(paths,
			"libopus.so.0",
			"libopus.so",
			"/usr/lib/x86_64-linux-gnu/libopus.so.0",
			"/usr/lib/aarch64-linux-gnu/libopus.so.0",
			"/usr/local/lib/libopus.so.0",
		)
	}
	return paths
}

// load opens libopus once per process.
func load() error {
	loadOnce.Do(func() {
		loadErr = openLibrary()
		logger := logrus.WithField("function", "libopus.load")
		if loadErr != nil {
			logger.WithField("error", loadErr.Error()).Warn("libopus unavailable")
			return
		}
		logger.WithField("version", opusGetVersionString()).Info("Loaded libopus")
	})
	return loadErr
}

func openLibrary() error {
	var lastErr error
	for _, path := range libraryPaths() {
		h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := bindSymbols(h); err != nil {
			_ = purego.Dlclose(h)
			lastErr = fmt.Errorf("%s: %w", path, err)
			continue
		}
		handle = h
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func bindSymbols(h uintptr) error {
	bindings := []struct {
		name string
		fns  []any
	}{
		{"opus_encoder_create", []any{&opusEncoderCreate}},
		{"opus_encoder_destroy", []any{&opusEncoderDestroy}},
		{"opus_encode_float", []any{&opusEncodeFloat}},
		{"opus_encoder_ctl", []any{&opusEncoderCtlSet, &opusEncoderCtlGet}},
		{"opus_decoder_create", []any{&opusDecoderCreate}},
		{"opus_decoder_destroy", []any{&opusDecoderDestroy}},
		{"opus_decode_float", []any{&opusDecodeFloat}},
		{"opus_decoder_ctl", []any{&opusDecoderCtlSet}},
		{"opus_strerror", []any{&opusStrerror}},
		{"opus_get_version_string", []any{&opusGetVersionString}},
	}

	// Resolve everything before registering so a partial library leaves
	// no half-bound function variables behind.
	syms := make([]uintptr, len(bindings))
	for i, b := range bindings {
		sym, err := purego.Dlsym(h, b.name)
		if err != nil {
			return fmt.Errorf("missing symbol %s: %w", b.name, err)
		}
		syms[i] = sym
	}
	for i, b := range bindings {
		for _, fn := range b.fns {
			purego.RegisterFunc(fn, syms[i])
		}
	}
	return nil
}

// Available reports whether libopus could be loaded.
func Available() error {
	return load()
}

// Version returns the libopus version string, or "" when unavailable.
func Version() string {
	if load() != nil {
		return ""
	}
	return opusGetVersionString()
}

// codeError converts a negative libopus return code.
func codeError(code int32) error {
	return fmt.Errorf("libopus error %d: %s", code, opusStrerror(code))
}
