// Package usage defines the optional persistence layer for per-response cost
// records. The session orchestrator writes one [Entry] per response that
// carried usage metadata; a disabled ledger (no DSN configured) is simply
// absent and nothing is written.
package usage

import (
	"context"
	"time"

	"github.com/jmallek/voicewire/pkg/pricing"
)

// Entry is one persisted cost record, derived from a [pricing.Breakdown].
type Entry struct {
	RecordedAt time.Time
	Model      string

	InputTextTokens   int64
	InputAudioTokens  int64
	OutputTextTokens  int64
	OutputAudioTokens int64

	InputCost  float64
	OutputCost float64
	TotalCost  float64
}

// EntryFromBreakdown converts a cost breakdown into a ledger entry stamped
// with the current time.
func EntryFromBreakdown(b pricing.Breakdown) Entry {
	return Entry{
		RecordedAt:        time.Now(),
		Model:             b.Model,
		InputTextTokens:   b.InputTextTokens,
		InputAudioTokens:  b.InputAudioTokens,
		OutputTextTokens:  b.OutputTextTokens,
		OutputAudioTokens: b.OutputAudioTokens,
		InputCost:         b.InputCost,
		OutputCost:        b.OutputCost,
		TotalCost:         b.TotalCost,
	}
}

// Ledger persists cost entries. Implementations must be safe for concurrent
// use. Record is called from the session's receive loop and must not block
// longer than its context allows.
type Ledger interface {
	Record(ctx context.Context, entry Entry) error
	Close()
}
