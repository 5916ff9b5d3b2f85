// Package formats reads audio files into stereo sample streams and writes
// rendered audio back out as WAV.
//
// Decoding is done by go-audio/wav (PCM WAV of 8 to 32 bits), go-mp3 and
// oggvorbis. Every decoder yields a [Source] of interleaved float32 samples
// in [-1, 1]; [NewStreamer] turns any Source into a stereo beep.Streamer,
// duplicating mono and keeping the first two channels of wider layouts.
//
//	src, err := formats.Open("take1.mp3")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//	s := formats.NewStreamer(src)
//
// [WAVWriter] writes 16-bit stereo PCM through the go-audio/wav encoder.
package formats
