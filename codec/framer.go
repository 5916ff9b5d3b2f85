package codec

// Framer gathers stereo sample pairs into frames and interleaves each
// complete frame as L0 R0 L1 R1 ... for the engine.
type Framer struct {
	left        []float32
	right       []float32
	interleaved []float32
	pos         int
}

// NewFramer allocates a Framer for frames of size samples per channel.
func NewFramer(size int) *Framer {
	f := &Framer{}
	f.Resize(size)
	return f
}

// Push appends one pair and reports whether it completed a frame. When it
// returns true the interleaved frame is available from Frame and the write
// cursor is back at zero.
func (f *Framer) Push(left, right float32) bool {
	f.left[f.pos] = left
	f.right[f.pos] = right
	f.pos++
	if f.pos < len(f.left) {
		return false
	}
	for i := range f.left {
		f.interleaved[2*i] = f.left[i]
		f.interleaved[2*i+1] = f.right[i]
	}
	f.pos = 0
	return true
}

// Frame returns the last completed interleaved frame. The slice is reused by
// the next completed frame.
func (f *Framer) Frame() []float32 {
	return f.interleaved
}

// Pending returns the number of pairs waiting for the current frame.
func (f *Framer) Pending() int {
	return f.pos
}

// Size returns the frame size in samples per channel.
func (f *Framer) Size() int {
	return len(f.left)
}

// Resize reallocates for a new frame size. Any partial frame is discarded.
func (f *Framer) Resize(size int) {
	f.left = make([]float32, size)
	f.right = make([]float32, size)
	f.interleaved = make([]float32, size*Channels)
	f.pos = 0
}

// Clear zeroes all buffered audio and discards any partial frame.
func (f *Framer) Clear() {
	clear(f.left)
	clear(f.right)
	clear(f.interleaved)
	f.pos = 0
}
