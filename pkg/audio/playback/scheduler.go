// Package playback schedules decoded response audio for gapless output.
//
// Response audio arrives as asynchronously decoded segments; the [Scheduler]
// maintains an ordered timeline on the host output clock so that each segment
// begins exactly where the previous one ends, with no intentional gap and no
// overlap. A barge-in signal from the transport triggers [Scheduler.Interrupt],
// which hard-stops everything and resets the timeline so the next segment
// plays immediately.
//
// This package lives under pkg/ because playback sinks (real audio devices,
// test fakes) are expected to implement [Sink].
package playback

import (
	"sync"
	"time"
)

// Buffer is one decoded unit of response audio: mono float samples at a fixed
// sample rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Sink is the host audio-output boundary. Schedule submits a buffer to begin
// playing at start, expressed on the same monotonic clock the sink reports as
// its current output time. onEnded is invoked exactly once when the buffer
// finishes playing naturally; it is never invoked after the returned stop
// function has been called. stop force-stops playback immediately and is
// idempotent.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	Schedule(buf Buffer, start time.Duration, onEnded func()) (stop func())
}

// Scheduler owns the playback timeline: the next free start time and the set
// of currently scheduled or playing segments. All playback actions must go
// through [Scheduler.Enqueue] and [Scheduler.Interrupt]; nothing else may
// touch output state.
//
// Safe for concurrent use.
type Scheduler struct {
	sink Sink

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]func() // segment id → stop
	seq       uint64
	gen       uint64 // bumped by Interrupt to invalidate in-flight Enqueues
}

// NewScheduler returns a Scheduler that submits segments to sink.
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		sink:   sink,
		active: make(map[uint64]func()),
	}
}

// Enqueue schedules buf for gapless playback and returns its scheduled start
// time. The segment begins at max(next free slot, now) — now must be the
// sink's current output-clock reading at call time. Callers preserve acoustic
// order by calling Enqueue in the order segments should be heard.
//
// The segment is tracked until it ends naturally or [Scheduler.Interrupt]
// stops it.
func (s *Scheduler) Enqueue(buf Buffer, now time.Duration) time.Duration {
	s.mu.Lock()
	start := s.nextStart
	if now > start {
		start = now
	}
	s.nextStart = start + buf.Duration()
	s.seq++
	id := s.seq
	gen := s.gen
	s.mu.Unlock()

	// Submit outside the lock: a sink may invoke onEnded synchronously for
	// zero-length buffers.
	stop := s.sink.Schedule(buf, start, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.gen != gen {
		// Interrupted while submitting; this segment belongs to the old
		// timeline and must not play.
		s.mu.Unlock()
		stop()
		return start
	}
	s.active[id] = stop
	s.mu.Unlock()

	return start
}

// Interrupt force-stops every scheduled or playing segment and resets the
// timeline to zero, so the next [Scheduler.Enqueue] starts at its caller's
// clock reading. Idempotent: with no active segments it only resets the
// timeline.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stops := make([]func(), 0, len(s.active))
	for _, stop := range s.active {
		stops = append(stops, stop)
	}
	s.active = make(map[uint64]func())
	s.nextStart = 0
	s.gen++
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// Active returns the number of segments currently scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the start time the next enqueued segment would receive if
// enqueued at clock zero. Exposed for tests and diagnostics.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
