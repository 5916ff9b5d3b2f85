package codec

import "fmt"

// Ring is the output smoothing buffer: a circular store of stereo pairs
// written a frame at a time and read a pair at a time.
//
// Capacity is RingFrames frames. Available is (write - read) mod capacity and
// always stays below capacity; a write that would reach it is refused whole.
type Ring struct {
	left  []float32
	right []float32
	write int
	read  int
	lead  int
}

// NewRing allocates a ring for frames of frameSize samples per channel.
func NewRing(frameSize int) *Ring {
	r := &Ring{}
	r.Resize(frameSize)
	return r
}

// Capacity returns the ring size in pairs.
func (r *Ring) Capacity() int {
	return len(r.left)
}

// Lead returns how many pairs must stay buffered before Pull releases audio.
func (r *Ring) Lead() int {
	return r.lead
}

// Available returns the number of unread pairs.
func (r *Ring) Available() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return len(r.left) - r.read + r.write
}

// Write appends n pairs from an interleaved slice.
func (r *Ring) Write(interleaved []float32, n int) error {
	if n < 0 || len(interleaved) < n*Channels {
		return fmt.Errorf("ring write of %d pairs from %d samples: %w", n, len(interleaved), ErrBlockSize)
	}
	if r.Available()+n >= len(r.left) {
		return fmt.Errorf("%w: %d available, %d incoming, capacity %d", ErrRingOverrun, r.Available(), n, len(r.left))
	}
	for i := 0; i < n; i++ {
		r.left[r.write] = interleaved[2*i]
		r.right[r.write] = interleaved[2*i+1]
		r.write++
		if r.write == len(r.left) {
			r.write = 0
		}
	}
	return nil
}

// Pull returns the next pair when more than Lead pairs are buffered.
// Otherwise it returns silence and ok is false.
func (r *Ring) Pull() (left, right float32, ok bool) {
	if r.Available() <= r.lead {
		return 0, 0, false
	}
	left, right = r.left[r.read], r.right[r.read]
	r.read++
	if r.read == len(r.left) {
		r.read = 0
	}
	return left, right, true
}

// Resize reallocates for a new frame size and resets both cursors.
func (r *Ring) Resize(frameSize int) {
	r.left = make([]float32, frameSize*RingFrames)
	r.right = make([]float32, frameSize*RingFrames)
	r.lead = frameSize
	r.write = 0
	r.read = 0
}

// Clear drops buffered audio without reallocating.
func (r *Ring) Clear() {
	clear(r.left)
	clear(r.right)
	r.write = 0
	r.read = 0
}
