// Package factory selects the Opus engine implementation used by codecs.
//
// The factory decouples codec construction from concrete engines, so the
// same processing code runs against libopus in production and against the
// deterministic loopback engine in tests and dry runs.
//
// # Configuration
//
// The factory reads environment overrides at construction:
//   - OPUSLOOP_ENGINE: "libopus" or "loopback"
//   - OPUSLOOP_QUEUE_SIZE: integer capacity of a processor's command queue
//
// Invalid values are logged and ignored.
//
// # Usage
//
//	f := factory.NewEngineFactory()
//	c, err := codec.New(48000, f.Open)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Testing Support
//
// Tests switch to the loopback engine without touching the environment:
//
//	f := factory.NewEngineFactory()
//	f.SwitchToLoopback()
package factory
