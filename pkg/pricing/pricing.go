// Package pricing computes the monetary cost of model responses from the
// token-usage metadata attached to them.
//
// The model bills text and audio tokens at different rates, separately for
// the prompt side (what the client sent) and the response side (what the
// model generated). [Table.Compute] maps one [UsageRecord] and a model
// identifier to a [Breakdown]; [Tracker] accumulates the running session
// total across breakdowns.
package pricing

import "sync"

// Modality classifies a token detail entry. Values mirror the wire protocol's
// modality strings; entries with any other modality are ignored by
// [Table.Compute] so that new modalities added server-side do not break cost
// accounting.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityAudio Modality = "AUDIO"
)

// TokenDetail is one per-modality token count reported by the model.
type TokenDetail struct {
	Modality   Modality
	TokenCount int64
}

// UsageRecord is the token-usage metadata attached to one response message:
// prompt-side and response-side detail collections.
type UsageRecord struct {
	Prompt   []TokenDetail
	Response []TokenDetail
}

// Rates holds per-token USD prices for the two billed modalities.
type Rates struct {
	Text  float64
	Audio float64
}

// ModelPrice is the full price entry for one model.
type ModelPrice struct {
	Input  Rates
	Output Rates
}

// Breakdown is the cost of a single response, derived from one [UsageRecord].
// It is recomputed fresh per response and never mutated.
type Breakdown struct {
	Model string

	InputTextTokens   int64
	InputAudioTokens  int64
	OutputTextTokens  int64
	OutputAudioTokens int64

	// Costs in USD.
	InputCost  float64
	OutputCost float64
	TotalCost  float64
}

// perMillion converts a USD-per-million-tokens price to a per-token rate.
func perMillion(usd float64) float64 { return usd / 1_000_000 }

// DefaultModel is the price-table entry used when a response names a model
// the table does not know. Cost accounting degrades to this entry rather than
// failing.
const DefaultModel = "gemini-2.0-flash-live-001"

// defaultPrices holds the built-in per-token price table. Prices are the
// published per-million rates for the live API models.
var defaultPrices = map[string]ModelPrice{
	"gemini-2.0-flash-live-001": {
		Input:  Rates{Text: perMillion(0.35), Audio: perMillion(2.10)},
		Output: Rates{Text: perMillion(1.50), Audio: perMillion(8.50)},
	},
	"gemini-2.5-flash-preview-native-audio-dialog": {
		Input:  Rates{Text: perMillion(0.50), Audio: perMillion(3.00)},
		Output: Rates{Text: perMillion(2.00), Audio: perMillion(12.00)},
	},
	"gemini-2.5-flash-exp-native-audio-thinking-dialog": {
		Input:  Rates{Text: perMillion(0.50), Audio: perMillion(3.00)},
		Output: Rates{Text: perMillion(2.00), Audio: perMillion(12.00)},
	},
}

// Table is an immutable mapping from model identifier to prices, with a
// designated fallback entry for unknown identifiers. Construct one at process
// start and share it freely; it has no mutable state.
type Table struct {
	models       map[string]ModelPrice
	defaultModel string
}

// DefaultTable returns the built-in price table with [DefaultModel] as the
// fallback entry.
func DefaultTable() Table {
	return Table{models: defaultPrices, defaultModel: DefaultModel}
}

// NewTable builds a table from the given entries, layered over the built-in
// prices (entries override built-ins with the same key). defaultModel selects
// the fallback entry; it must exist in the resulting table, otherwise the
// built-in [DefaultModel] is used.
func NewTable(entries map[string]ModelPrice, defaultModel string) Table {
	models := make(map[string]ModelPrice, len(defaultPrices)+len(entries))
	for k, v := range defaultPrices {
		models[k] = v
	}
	for k, v := range entries {
		models[k] = v
	}
	if _, ok := models[defaultModel]; !ok {
		defaultModel = DefaultModel
	}
	return Table{models: models, defaultModel: defaultModel}
}

// Lookup resolves model against the table, falling back to the default entry
// for unknown identifiers. It never fails.
func (t Table) Lookup(model string) ModelPrice {
	if p, ok := t.models[model]; ok {
		return p
	}
	return t.models[t.defaultModel]
}

// Compute derives the cost breakdown for one response. Token counts are
// summed per modality on each side; details with an unrecognised modality are
// skipped. Pure and deterministic — safe to call any number of times with
// the same record.
func (t Table) Compute(model string, usage UsageRecord) Breakdown {
	price := t.Lookup(model)

	inText, inAudio := sumByModality(usage.Prompt)
	outText, outAudio := sumByModality(usage.Response)

	b := Breakdown{
		Model:             model,
		InputTextTokens:   inText,
		InputAudioTokens:  inAudio,
		OutputTextTokens:  outText,
		OutputAudioTokens: outAudio,
	}
	b.InputCost = float64(inText)*price.Input.Text + float64(inAudio)*price.Input.Audio
	b.OutputCost = float64(outText)*price.Output.Text + float64(outAudio)*price.Output.Audio
	b.TotalCost = b.InputCost + b.OutputCost
	return b
}

func sumByModality(details []TokenDetail) (text, audio int64) {
	for _, d := range details {
		switch d.Modality {
		case ModalityText:
			text += d.TokenCount
		case ModalityAudio:
			audio += d.TokenCount
		}
	}
	return text, audio
}

// Tracker accumulates the running session total across breakdowns.
// Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	total float64
	turns int
}

// Add folds one breakdown into the session total.
func (tr *Tracker) Add(b Breakdown) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.total += b.TotalCost
	tr.turns++
}

// Total returns the accumulated session cost in USD.
func (tr *Tracker) Total() float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.total
}

// Turns returns the number of breakdowns accumulated so far.
func (tr *Tracker) Turns() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.turns
}
