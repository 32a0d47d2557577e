// Package portaudio adapts real audio devices to the voicewire pipeline
// boundaries using PortAudio.
//
// [Capture] delivers host-sized blocks of mono float samples from the default
// input device at [audio.CaptureRate]. [Player] renders scheduled playback
// segments to the default output device at [audio.PlaybackRate] and exposes
// the sample-accurate output clock the playback scheduler anchors against.
// Player implements [playback.Sink].
package portaudio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/jmallek/voicewire/pkg/audio"
	"github.com/jmallek/voicewire/pkg/audio/playback"
)

// Compile-time interface check.
var _ playback.Sink = (*Player)(nil)

const (
	// captureBlock is the requested capture callback size in samples. The
	// host may deliver a different size; the Framer handles either way.
	captureBlock = 1024

	// renderBlock is the output callback size in samples.
	renderBlock = 1024

	// captureBuf is the depth of the capture channel. Blocks are dropped
	// (never blocked on) when the consumer falls behind, since the capture
	// callback runs at audio-rate cadence.
	captureBuf = 16
)

// initMu serialises PortAudio library init/terminate across Capture and
// Player instances.
var (
	initMu   sync.Mutex
	initRefs int
)

func initLibrary() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	initRefs++
	return nil
}

func terminateLibrary() {
	initMu.Lock()
	defer initMu.Unlock()
	initRefs--
	if initRefs == 0 {
		_ = pa.Terminate()
	}
}

// ── Capture ────────────────────────────────────────────────────────────────────

// Capture streams mono float blocks from the default input device.
type Capture struct {
	stream *pa.Stream
	blocks chan []float32

	mu     sync.Mutex
	closed bool
}

// OpenCapture opens and starts the default input device at
// [audio.CaptureRate], mono.
func OpenCapture() (*Capture, error) {
	if err := initLibrary(); err != nil {
		return nil, err
	}

	c := &Capture{
		blocks: make(chan []float32, captureBuf),
	}

	stream, err := pa.OpenDefaultStream(1, 0, float64(audio.CaptureRate), captureBlock, c.onInput)
	if err != nil {
		terminateLibrary()
		return nil, fmt.Errorf("portaudio: open capture: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		terminateLibrary()
		return nil, fmt.Errorf("portaudio: start capture: %w", err)
	}
	return c, nil
}

// onInput runs inside the PortAudio capture callback. It copies the host
// buffer (which PortAudio reuses) and hands it off without ever blocking;
// when the consumer lags the block is dropped.
func (c *Capture) onInput(in []float32) {
	block := make([]float32, len(in))
	copy(block, in)
	select {
	case c.blocks <- block:
	default:
	}
}

// Blocks returns the channel of capture blocks. Block size is
// host-determined. The channel is closed by [Capture.Close].
func (c *Capture) Blocks() <-chan []float32 { return c.blocks }

// Close stops the device and closes the block channel. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.stream.Stop()
	if cerr := c.stream.Close(); err == nil {
		err = cerr
	}
	close(c.blocks)
	terminateLibrary()
	if err != nil {
		return fmt.Errorf("portaudio: close capture: %w", err)
	}
	return nil
}

// ── Player ─────────────────────────────────────────────────────────────────────

// segment is one scheduled playback region on the output timeline.
type segment struct {
	samples []float32
	start   int64 // output-clock sample index of the first sample
	pos     int   // samples already rendered
	stopped bool
	onEnded func()
}

// Player renders scheduled segments to the default output device and keeps a
// sample-accurate monotonic output clock. It implements [playback.Sink];
// [Player.Now] supplies the clock reading the scheduler passes to Enqueue.
//
// Safe for concurrent use.
type Player struct {
	stream *pa.Stream

	mu     sync.Mutex
	clock  int64 // samples rendered since start
	segs   []*segment
	closed bool
}

// OpenPlayer opens and starts the default output device at
// [audio.PlaybackRate], mono.
func OpenPlayer() (*Player, error) {
	if err := initLibrary(); err != nil {
		return nil, err
	}

	p := &Player{}
	stream, err := pa.OpenDefaultStream(0, 1, float64(audio.PlaybackRate), renderBlock, p.render)
	if err != nil {
		terminateLibrary()
		return nil, fmt.Errorf("portaudio: open player: %w", err)
	}
	p.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		terminateLibrary()
		return nil, fmt.Errorf("portaudio: start player: %w", err)
	}
	return p, nil
}

// Now returns the current output-clock time: samples rendered so far.
func (p *Player) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return samplesToDuration(p.clock)
}

// Schedule implements [playback.Sink]. Segments must carry samples at
// [audio.PlaybackRate]; a start time already in the past plays immediately
// from its beginning.
func (p *Player) Schedule(buf playback.Buffer, start time.Duration, onEnded func()) (stop func()) {
	seg := &segment{
		samples: buf.Samples,
		start:   durationToSamples(start),
		onEnded: onEnded,
	}

	p.mu.Lock()
	if seg.start < p.clock {
		seg.start = p.clock
	}
	p.segs = append(p.segs, seg)
	sort.Slice(p.segs, func(i, j int) bool { return p.segs[i].start < p.segs[j].start })
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			seg.stopped = true
			p.removeLocked(seg)
			p.mu.Unlock()
		})
	}
}

// render runs inside the PortAudio output callback: it zero-fills out, mixes
// in any segment overlapping the current clock window, fires completion
// callbacks off the audio thread, and advances the clock.
func (p *Player) render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	p.mu.Lock()
	window := int64(len(out))
	var ended []*segment

	for _, seg := range p.segs {
		if seg.stopped || seg.start >= p.clock+window {
			continue
		}
		offset := seg.start + int64(seg.pos) - p.clock
		if offset < 0 {
			offset = 0
		}
		n := copy(out[offset:], seg.samples[seg.pos:])
		seg.pos += n
		if seg.pos >= len(seg.samples) {
			ended = append(ended, seg)
		}
	}
	for _, seg := range ended {
		p.removeLocked(seg)
	}
	p.clock += window
	p.mu.Unlock()

	// Completion callbacks run off the audio thread.
	for _, seg := range ended {
		if seg.onEnded != nil {
			go seg.onEnded()
		}
	}
}

// removeLocked removes seg from the scheduled set. Caller holds p.mu.
func (p *Player) removeLocked(seg *segment) {
	for i, s := range p.segs {
		if s == seg {
			p.segs = append(p.segs[:i], p.segs[i+1:]...)
			return
		}
	}
}

// Close stops the device. Segments still scheduled are discarded without
// their completion callbacks firing. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.segs = nil
	p.mu.Unlock()

	err := p.stream.Stop()
	if cerr := p.stream.Close(); err == nil {
		err = cerr
	}
	terminateLibrary()
	if err != nil {
		return fmt.Errorf("portaudio: close player: %w", err)
	}
	return nil
}

func samplesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / audio.PlaybackRate
}

func durationToSamples(d time.Duration) int64 {
	return int64(d * audio.PlaybackRate / time.Second)
}
