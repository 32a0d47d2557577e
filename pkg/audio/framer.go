package audio

// Framer accumulates variable-length capture blocks into fixed
// [FrameSize]-sample frames. The host capture facility delivers blocks of
// whatever size it likes; the model wants uniform frames, so Append buffers
// partial input and emits a frame only when the internal buffer fills.
//
// Append runs inside the periodic audio callback: it never blocks and
// allocates only when a frame is emitted (one copy per frame — the internal
// buffer is reused, emitted frames are never views into it).
//
// Known edge-case policy: if an incoming block is larger than the remaining
// buffer space, only the prefix that fits is copied and the remainder of that
// block is dropped — it is NOT carried into the next frame. Bursty capture
// callbacks can therefore lose samples. Callers that need lossless framing
// must keep their block sizes at or below the remaining capacity.
//
// Framer is not safe for concurrent use; it is owned by the single capture
// goroutine.
type Framer struct {
	buf []float32
	n   int
}

// NewFramer returns a Framer with an empty [FrameSize]-sample buffer.
func NewFramer() *Framer {
	return &Framer{buf: make([]float32, FrameSize)}
}

// Append copies samples into the internal buffer and returns zero or more
// completed frames. Each returned frame has exactly [FrameSize] samples and
// is an independent copy. Empty input is a no-op.
func (f *Framer) Append(samples []float32) [][]float32 {
	if len(samples) == 0 {
		return nil
	}

	copied := copy(f.buf[f.n:], samples)
	f.n += copied
	// Anything beyond the remaining space is dropped, per the documented
	// truncation policy.

	if f.n < FrameSize {
		return nil
	}

	frame := make([]float32, FrameSize)
	copy(frame, f.buf)
	f.n = 0
	return [][]float32{frame}
}

// Buffered returns the number of samples currently held back waiting for a
// full frame. Exposed for tests and diagnostics.
func (f *Framer) Buffered() int { return f.n }
