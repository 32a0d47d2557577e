package config_test

import (
	"strings"
	"testing"

	"github.com/jmallek/voicewire/internal/config"
	"github.com/jmallek/voicewire/pkg/pricing"
)

const validYAML = `
server:
  log_level: debug
  metrics_addr: ":9091"
client:
  api_key: test-key
  model: gemini-2.0-flash-live-001
  voice: Puck
  instructions: You are a terse assistant.
pricing:
  default_model: gemini-2.0-flash-live-001
  models:
    gemini-2.0-flash-live-001:
      input:
        text: 0.35
        audio: 2.10
      output:
        text: 1.50
        audio: 8.50
usage:
  postgres_dsn: postgres://localhost:5432/voicewire
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if got, want := cfg.Server.LogLevel, config.LogDebug; got != want {
		t.Errorf("Server.LogLevel = %q, want %q", got, want)
	}
	if got, want := cfg.Server.MetricsAddr, ":9091"; got != want {
		t.Errorf("Server.MetricsAddr = %q, want %q", got, want)
	}
	if got, want := cfg.Client.Model, "gemini-2.0-flash-live-001"; got != want {
		t.Errorf("Client.Model = %q, want %q", got, want)
	}
	if got, want := cfg.Client.Voice, "Puck"; got != want {
		t.Errorf("Client.Voice = %q, want %q", got, want)
	}
	if got, want := cfg.Usage.PostgresDSN, "postgres://localhost:5432/voicewire"; got != want {
		t.Errorf("Usage.PostgresDSN = %q, want %q", got, want)
	}

	rates, ok := cfg.Pricing.Models["gemini-2.0-flash-live-001"]
	if !ok {
		t.Fatal("Pricing.Models missing configured model")
	}
	if got, want := rates.Output.Audio, 8.50; got != want {
		t.Errorf("Pricing output audio rate = %v, want %v", got, want)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	const yml = `
server:
  log_level: info
  listen_addr: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yml)); err == nil {
		t.Fatal("LoadFromReader() accepted a config with an unknown field")
	}
}

func TestValidateLogLevel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	if err := config.Validate(cfg); err == nil {
		t.Error("Validate() accepted invalid log level")
	}

	cfg.Server.LogLevel = "warn"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v for valid log level", err)
	}
}

func TestValidateNegativeRates(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Pricing: config.PricingConfig{
			Models: map[string]config.ModelRates{
				"some-model": {Input: config.Rates{Text: -1}},
			},
		},
	}
	if err := config.Validate(cfg); err == nil {
		t.Error("Validate() accepted a negative pricing rate")
	}
}

func TestPriceTableOverrides(t *testing.T) {
	t.Parallel()

	// Per-million config rates become per-token prices in the table.
	table := config.PricingConfig{
		Models: map[string]config.ModelRates{
			"custom-live-model": {
				Output: config.Rates{Text: 2.0, Audio: 12.0},
			},
		},
	}.PriceTable()

	usage := pricing.UsageRecord{
		Response: []pricing.TokenDetail{
			{Modality: pricing.ModalityAudio, TokenCount: 1_000_000},
		},
	}
	b := table.Compute("custom-live-model", usage)
	if got, want := b.OutputCost, 12.0; got != want {
		t.Errorf("OutputCost = %v, want %v", got, want)
	}
}

func TestPriceTableDefaultsWhenEmpty(t *testing.T) {
	t.Parallel()

	table := config.PricingConfig{}.PriceTable()
	b := table.Compute("totally-unknown-model", pricing.UsageRecord{
		Prompt: []pricing.TokenDetail{{Modality: pricing.ModalityText, TokenCount: 1000}},
	})
	if b.InputCost <= 0 {
		t.Errorf("InputCost = %v, want > 0 via default-model fallback", b.InputCost)
	}
}
