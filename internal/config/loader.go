package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Client
	if cfg.Client.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		slog.Warn("client.api_key is empty and GEMINI_API_KEY is not set; connection will be rejected by the provider")
	}

	// Pricing
	for name, rates := range cfg.Pricing.Models {
		if name == "" {
			errs = append(errs, errors.New("pricing.models contains an entry with an empty model name"))
			continue
		}
		prefix := fmt.Sprintf("pricing.models[%q]", name)
		for _, r := range []struct {
			field string
			value float64
		}{
			{"input.text", rates.Input.Text},
			{"input.audio", rates.Input.Audio},
			{"output.text", rates.Output.Text},
			{"output.audio", rates.Output.Audio},
		} {
			if r.value < 0 {
				errs = append(errs, fmt.Errorf("%s.%s %.4f is negative", prefix, r.field, r.value))
			}
		}
	}
	if cfg.Pricing.DefaultModel != "" {
		if _, ok := cfg.Pricing.Models[cfg.Pricing.DefaultModel]; !ok {
			slog.Warn("pricing.default_model has no entry in pricing.models; built-in prices will be used if it is a known model",
				"model", cfg.Pricing.DefaultModel,
			)
		}
	}

	// Usage
	if cfg.Usage.PostgresDSN == "" {
		slog.Debug("usage.postgres_dsn is empty; cost entries will not be persisted")
	}

	return errors.Join(errs...)
}
