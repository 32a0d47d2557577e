// Package session runs the voice conversation loop: it pumps captured
// microphone audio to the live model and turns the model's replies into
// scheduled playback, transcripts, and cost records.
//
// The [Orchestrator] owns two goroutines. The capture loop frames microphone
// blocks, converts them to the wire format, and sends them upstream. The
// receive loop reacts to each inbound message: barge-in flushes the playback
// queue, audio payloads are decoded and scheduled gaplessly, usage metadata is
// priced and recorded. Both loops stop on context cancellation or when the
// transport ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmallek/voicewire/internal/observe"
	"github.com/jmallek/voicewire/pkg/audio"
	"github.com/jmallek/voicewire/pkg/audio/playback"
	"github.com/jmallek/voicewire/pkg/live"
	"github.com/jmallek/voicewire/pkg/pricing"
	"github.com/jmallek/voicewire/pkg/usage"
)

// ledgerTimeout bounds one ledger write so a slow database cannot stall the
// receive loop.
const ledgerTimeout = 2 * time.Second

// Transcript is one recognised utterance, from either side of the
// conversation.
type Transcript struct {
	// Source is "user" for input transcription, "model" for output.
	Source string
	Text   string
}

// Config wires an [Orchestrator]. Live, Capture, Scheduler, and Clock are
// required; the rest are optional.
type Config struct {
	// Live is the open transport session.
	Live live.Session

	// Capture delivers microphone blocks of arbitrary size. The loop ends
	// cleanly when the channel closes.
	Capture <-chan []float32

	// Scheduler places decoded model audio on the playback timeline.
	Scheduler *playback.Scheduler

	// Clock reads the playback sink's current output time, passed to the
	// scheduler when enqueuing.
	Clock func() time.Duration

	// Prices maps usage metadata to cost. The zero table is not usable; use
	// [pricing.DefaultTable] when no overrides are configured.
	Prices pricing.Table

	// Model is the model identifier used for cost lookup.
	Model string

	// Ledger persists cost entries. Nil disables persistence; writes are
	// best-effort and never abort the session.
	Ledger usage.Ledger

	// Metrics receives instrumentation. Nil falls back to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger receives structured events. Nil falls back to [slog.Default].
	Logger *slog.Logger

	// Transcripts receives recognised utterances. Nil discards them; a full
	// channel drops rather than blocking the receive loop.
	Transcripts chan<- Transcript
}

// Orchestrator is the conversation loop for one live session.
type Orchestrator struct {
	cfg     Config
	framer  *audio.Framer
	tracker pricing.Tracker
}

// New validates cfg and returns an orchestrator ready to [Orchestrator.Run].
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.Live == nil {
		errs = append(errs, errors.New("session: Live is required"))
	}
	if cfg.Capture == nil {
		errs = append(errs, errors.New("session: Capture is required"))
	}
	if cfg.Scheduler == nil {
		errs = append(errs, errors.New("session: Scheduler is required"))
	}
	if cfg.Clock == nil {
		errs = append(errs, errors.New("session: Clock is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		framer: audio.NewFramer(),
	}, nil
}

// Tracker returns the running cost accumulator. Valid during and after Run.
func (o *Orchestrator) Tracker() *pricing.Tracker { return &o.tracker }

// Run drives both loops until ctx is cancelled, the capture channel closes,
// or the transport ends. A clean transport shutdown returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.captureLoop(ctx) })
	g.Go(func() error { return o.receiveLoop(ctx) })
	return g.Wait()
}

// captureLoop frames microphone blocks and ships full frames upstream.
func (o *Orchestrator) captureLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-o.cfg.Capture:
			if !ok {
				o.cfg.Logger.Debug("capture channel closed")
				return nil
			}
			for _, frame := range o.framer.Append(block) {
				pcm := audio.FloatToPCM16(frame)
				blob := live.MediaBlob{
					MIMEType: audio.CaptureMIMEType,
					Data:     audio.EncodeTransport(pcm),
				}
				if err := o.cfg.Live.SendMedia(blob); err != nil {
					return fmt.Errorf("session: send media: %w", err)
				}
				o.cfg.Metrics.CaptureFrames.Add(ctx, 1)
			}
		}
	}
}

// receiveLoop processes inbound messages until the transport ends.
func (o *Orchestrator) receiveLoop(ctx context.Context) error {
	var turnStart time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-o.cfg.Live.Messages():
			if !ok {
				if err := o.cfg.Live.Err(); err != nil {
					return fmt.Errorf("session: transport: %w", err)
				}
				o.cfg.Logger.Debug("transport closed cleanly")
				return nil
			}
			o.handleMessage(ctx, msg, &turnStart)
		}
	}
}

// handleMessage applies one inbound message. Barge-in is handled before any
// audio the same message might carry, so stale queued playback never outlives
// the interruption that invalidated it.
func (o *Orchestrator) handleMessage(ctx context.Context, msg live.ServerMessage, turnStart *time.Time) {
	if msg.SetupComplete {
		o.cfg.Logger.Info("session setup complete")
	}

	if msg.Interrupted {
		flushed := o.cfg.Scheduler.Active()
		o.cfg.Scheduler.Interrupt()
		o.cfg.Metrics.Interruptions.Add(ctx, 1)
		o.cfg.Logger.Info("playback interrupted", "flushed_segments", flushed)
	}

	for _, payload := range msg.Audio {
		if turnStart.IsZero() {
			*turnStart = time.Now()
		}
		o.scheduleAudio(ctx, payload)
	}

	if msg.InputTranscription != "" {
		o.emitTranscript(Transcript{Source: "user", Text: msg.InputTranscription})
	}
	if msg.OutputTranscription != "" {
		o.emitTranscript(Transcript{Source: "model", Text: msg.OutputTranscription})
	}

	if msg.Usage != nil {
		o.recordUsage(ctx, *msg.Usage)
	}

	if msg.TurnComplete {
		if !turnStart.IsZero() {
			o.cfg.Metrics.TurnDuration.Record(ctx, time.Since(*turnStart).Seconds())
			*turnStart = time.Time{}
		}
		o.cfg.Logger.Debug("turn complete")
	}
}

// scheduleAudio decodes one inbound payload and places it on the playback
// timeline. A payload that fails to decode is dropped on its own; later
// payloads from the same message still play.
func (o *Orchestrator) scheduleAudio(ctx context.Context, payload string) {
	pcm, err := audio.DecodeTransport(payload)
	if err != nil {
		o.cfg.Metrics.DecodeFailures.Add(ctx, 1)
		o.cfg.Logger.Warn("dropping undecodable audio payload", "error", err)
		return
	}
	channels := audio.PCM16ToFloat(pcm, 1)
	buf := playback.Buffer{Samples: channels[0], SampleRate: audio.PlaybackRate}
	start := o.cfg.Scheduler.Enqueue(buf, o.cfg.Clock())
	o.cfg.Metrics.PlaybackSegments.Add(ctx, 1)
	o.cfg.Logger.Debug("scheduled playback segment",
		"samples", len(buf.Samples),
		"start", start,
	)
}

// recordUsage prices one usage record, folds it into the session total, and
// best-effort persists it.
func (o *Orchestrator) recordUsage(ctx context.Context, rec pricing.UsageRecord) {
	b := o.cfg.Prices.Compute(o.cfg.Model, rec)
	o.tracker.Add(b)

	o.cfg.Metrics.RecordTokens(ctx, "input", "text", b.InputTextTokens)
	o.cfg.Metrics.RecordTokens(ctx, "input", "audio", b.InputAudioTokens)
	o.cfg.Metrics.RecordTokens(ctx, "output", "text", b.OutputTextTokens)
	o.cfg.Metrics.RecordTokens(ctx, "output", "audio", b.OutputAudioTokens)
	o.cfg.Metrics.RecordCost(ctx, b.Model, b.TotalCost)

	o.cfg.Logger.Info("response usage",
		"model", b.Model,
		"input_audio_tokens", b.InputAudioTokens,
		"output_audio_tokens", b.OutputAudioTokens,
		"cost_usd", b.TotalCost,
		"session_total_usd", o.tracker.Total(),
	)

	if o.cfg.Ledger == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()
	if err := o.cfg.Ledger.Record(wctx, usage.EntryFromBreakdown(b)); err != nil {
		o.cfg.Logger.Warn("usage ledger write failed", "error", err)
	}
}

// emitTranscript forwards one utterance without ever blocking the receive
// loop.
func (o *Orchestrator) emitTranscript(tr Transcript) {
	if o.cfg.Transcripts == nil {
		return
	}
	select {
	case o.cfg.Transcripts <- tr:
	default:
		o.cfg.Logger.Debug("transcript dropped, channel full", "source", tr.Source)
	}
}
