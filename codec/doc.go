// Package codec implements the per-sample Opus round-trip pipeline.
//
// A [Codec] takes one stereo sample pair at a time, gathers pairs into
// fixed-size frames, sends every complete frame through one encode and one
// decode call of an [engine.Engine], and hands the decoded audio back out one
// pair at a time through a ring buffer:
//
//	host sample ──► Framer ──(frame complete)──► RoundTrip ──► Ring ──► host sample
//
// The push side works in frame-sized bursts while the pull side drains one
// pair per call. The [Ring] only releases audio while it holds more than one
// frame, so the reader never catches the writer in the middle of a burst.
// Until that lead exists the output is silence.
//
// # Usage
//
//	c, err := codec.New(44100, libopus.Open)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.SetBitrate(32000); err != nil {
//	    // out of range, or rejected by the engine (value rolled back)
//	}
//
//	for i := range inL {
//	    outL[i], outR[i] = c.ProcessSample(inL[i], inR[i])
//	}
//
// # Rates and frames
//
// Host rates are mapped upward onto the engine rates 8, 12, 16, 24 and 48 kHz
// by [NegotiateRate]; nothing is resampled. Frames last 2.5, 5, 10, 20, 40 or
// 60 ms ([FrameDuration]) and the ring holds four of them.
//
// # Failure policy
//
// A frame whose encode or decode fails is dropped: nothing is written to the
// ring, the drop is counted in [Stats], and the next frame is tried on its
// own. The ring's underrun rule then covers the gap with silence. The last
// good frame is never repeated.
//
// # Concurrency
//
// A Codec is not safe for concurrent use. Parameter changes, resets and frame
// size changes must be serialized with sample processing; the opusloop
// package does that with a command queue.
package codec
