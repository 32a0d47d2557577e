package audio_test

import (
	"testing"

	"github.com/jmallek/voicewire/pkg/audio"
)

// ramp returns n samples with values encoding their position, offset by base.
func ramp(base, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(base+i) / 100000
	}
	return out
}

func TestFramerAccumulatesAcrossBlocks(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer()

	if frames := f.Append(ramp(0, 1024)); frames != nil {
		t.Fatalf("Append(1024) emitted %d frames, want none", len(frames))
	}
	if got := f.Buffered(); got != 1024 {
		t.Errorf("Buffered() = %d, want 1024", got)
	}

	if frames := f.Append(ramp(1024, 2048)); frames != nil {
		t.Fatalf("Append(2048) emitted %d frames, want none", len(frames))
	}

	frames := f.Append(ramp(3072, 1024))
	if len(frames) != 1 {
		t.Fatalf("Append emitted %d frames, want 1", len(frames))
	}
	frame := frames[0]
	if len(frame) != audio.FrameSize {
		t.Fatalf("frame length = %d, want %d", len(frame), audio.FrameSize)
	}
	// The frame preserves sample order across block boundaries.
	for _, i := range []int{0, 1023, 1024, 3071, 3072, 4095} {
		if want := float32(i) / 100000; frame[i] != want {
			t.Errorf("frame[%d] = %v, want %v", i, frame[i], want)
		}
	}
	if got := f.Buffered(); got != 0 {
		t.Errorf("Buffered() after emit = %d, want 0", got)
	}
}

func TestFramerExactFrame(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer()
	frames := f.Append(make([]float32, audio.FrameSize))
	if len(frames) != 1 {
		t.Fatalf("Append(FrameSize) emitted %d frames, want 1", len(frames))
	}
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", f.Buffered())
	}
}

func TestFramerEmptyInput(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer()
	if frames := f.Append(nil); frames != nil {
		t.Errorf("Append(nil) = %v, want nil", frames)
	}
	if got := f.Buffered(); got != 0 {
		t.Errorf("Buffered() = %d, want 0", got)
	}
}

func TestFramerOverflowTruncates(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer()
	f.Append(make([]float32, audio.FrameSize-10))

	// 100 samples arrive with only 10 slots left: the frame completes and the
	// 90-sample tail is dropped, not carried over.
	frames := f.Append(ramp(0, 100))
	if len(frames) != 1 {
		t.Fatalf("Append emitted %d frames, want 1", len(frames))
	}
	if got := f.Buffered(); got != 0 {
		t.Errorf("Buffered() after overflow = %d, want 0 (tail dropped)", got)
	}

	// The next append starts a fresh frame.
	f.Append(make([]float32, 42))
	if got := f.Buffered(); got != 42 {
		t.Errorf("Buffered() = %d, want 42", got)
	}
}

func TestFramerEmittedFrameIsACopy(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer()
	frames := f.Append(make([]float32, audio.FrameSize))
	frame := frames[0]

	// Mutating the framer afterwards must not affect the emitted frame.
	next := make([]float32, audio.FrameSize)
	for i := range next {
		next[i] = 0.5
	}
	f.Append(next)

	if frame[0] != 0 {
		t.Error("emitted frame aliases the internal buffer")
	}
}
