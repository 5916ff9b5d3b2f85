// Package opusloop runs stereo audio through a real-time Opus encode/decode
// round trip so a host can hear what the codec does to its signal.
//
// Audio is never transmitted: every frame is encoded and immediately decoded
// again, and the decoded audio is re-emitted one sample at a time from a
// small ring buffer. The package is meant to sit inside an audio host (a
// plugin wrapper, an offline renderer, a streaming pipeline) that calls
// Process once per block from its audio thread.
//
// # Getting Started
//
//	opts := opusloop.NewOptions()
//	opts.Params.Bitrate = 24000
//
//	p, err := opusloop.New(48000, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	// audio thread, once per block
//	if err := p.Process(inL, inR, outL, outR); err != nil {
//	    log.Print(err)
//	}
//
//	// control thread, any time
//	_ = p.SetBitrate(64000)
//	_ = p.SetFrameSize(10)
//
// # Threads
//
// Process belongs to a single audio thread. Every other method may be called
// from any goroutine. Setters validate immediately, record the accepted
// value in the desired parameter snapshot returned by Params, and queue a
// command; the audio thread applies queued commands at the start of the next
// Process call, so parameter changes, frame-size changes, resets and codec
// swaps only happen between blocks. A full queue is reported as
// ErrQueueFull and nothing is recorded.
//
// # Output
//
// The codec emits silence until two frames of input have arrived and keeps
// about one frame buffered after that. Frames the engine fails to encode or
// decode are dropped without an error; the drop is visible in Stats and in
// the metrics package. See package codec for the pipeline itself.
//
// # Core Types
//
//   - [Processor]: block-processing entry point for a host
//   - [Options]: construction options, see [NewOptions] for defaults
//   - [Stats]: cumulative counters across codec swaps
package opusloop
