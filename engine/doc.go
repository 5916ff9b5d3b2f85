// Package engine defines the boundary between the round-trip pipeline and the
// audio compression engine that does the actual encoding and decoding.
//
// The pipeline never talks to a concrete codec library. It drives an [Engine]:
//
//	eng, err := libopus.Open(48000, 2)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	n, err := eng.Encode(frame, 960, packet)
//	decoded, err := eng.Decode(packet[:n], 960, pcm)
//
// Scalar encoder settings are forwarded through [Engine.SetControl] using the
// [Control] enumeration. Engines that cannot honour a control report
// [ErrUnsupportedControl] so callers can decide whether that is fatal.
//
// # Implementations
//
//   - engine/libopus: the system libopus, loaded at run time with purego
//   - [Loopback]: an in-memory identity engine used by tests and dry runs. It
//     can be told to reject controls or fail individual encode/decode calls.
//
// # Bandwidth
//
// [BandwidthForRate] maps each supported engine rate to the Opus audio
// bandwidth it can carry, using github.com/pion/opus definitions.
package engine
