// Package live defines the transport abstraction between the voicewire
// client and a real-time conversational model.
//
// A [Session] is a long-lived bidirectional stream: the client pushes
// [MediaBlob] values carrying encoded microphone frames, and the model pushes
// back [ServerMessage] values carrying synthesised audio, transcriptions,
// usage metadata, and control flags. The session orchestrator treats these as
// tagged records and never parses transport framing itself.
//
// Provider implementations live in sub-packages (e.g. live/gemini).
// All implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/jmallek/voicewire/pkg/pricing"
)

// MediaBlob is one outbound media payload: text-encoded PCM bytes plus the
// MIME type describing their format. Immutable once constructed; consumed
// exactly once by the transport.
type MediaBlob struct {
	MIMEType string
	Data     string
}

// ServerMessage is one inbound unit from the model. Any combination of fields
// may be populated; the zero value is an empty keepalive. It exists only for
// the duration of processing one message.
type ServerMessage struct {
	// SetupComplete acknowledges the session configuration. Sent once,
	// before any content.
	SetupComplete bool

	// Interrupted signals barge-in: the user began speaking and all queued
	// playback must stop immediately.
	Interrupted bool

	// TurnComplete marks the end of a model response turn.
	TurnComplete bool

	// Audio holds zero or more inline audio payloads (text-encoded PCM at
	// the playback rate), in the order they should be heard.
	Audio []string

	// InputTranscription is the model's recognition of recent user speech,
	// empty if none.
	InputTranscription string

	// OutputTranscription is the text form of the model's spoken response,
	// empty if none.
	OutputTranscription string

	// Usage carries the token counters for this response, nil if the message
	// has none.
	Usage *pricing.UsageRecord
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Instructions is the system-level prompt sent once at setup.
	Instructions string

	// Voice selects the prebuilt voice for synthesised output. Empty means
	// the provider default.
	Voice string
}

// Session is an open bidirectional stream to the model.
//
// The session is the hot path of the voice loop — SendMedia must return
// quickly and Messages must be drained promptly to keep the provider's
// receive loop moving. Callers must call Close when done.
type Session interface {
	// SendMedia delivers one outbound media payload. Returns an error if the
	// session is closed or the write fails.
	SendMedia(blob MediaBlob) error

	// Messages returns the channel on which inbound messages arrive. The
	// channel is closed when the session ends; check [Session.Err] afterwards
	// to distinguish clean shutdown from failure.
	Messages() <-chan ServerMessage

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly (or is still open).
	Err() error

	// Close terminates the session and closes the Messages channel.
	// Idempotent.
	Close() error
}

// Client is the entry point for a live-model provider.
type Client interface {
	// Connect opens a new session. The supplied ctx governs the connection
	// attempt only; the session stays alive until Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
