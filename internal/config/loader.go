package config

import (
	"errors"
	"fmt"
	"io"
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
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with the pipeline's documented
// defaults so an operator's YAML only needs to override what matters.
func applyDefaults(cfg *Config) {
	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 900 // 15 minutes, matching feed.New's fallback
	}
	if cfg.Candidates.ShiftSec <= 0 {
		cfg.Candidates.ShiftSec = 15
	}
	if cfg.Candidates.Limit <= 0 {
		cfg.Candidates.Limit = 50
	}
	if cfg.Shortlist.SendMax <= 0 {
		cfg.Shortlist.SendMax = 120
	}
	if cfg.Queue.IOQueue == "" {
		cfg.Queue.IOQueue = "io"
	}
	if cfg.Queue.AIQueue == "" {
		cfg.Queue.AIQueue = "ai"
	}
	if cfg.Queue.RenderQueue == "" {
		cfg.Queue.RenderQueue = "render"
	}
	if cfg.Gateways.Speech.ServerURL == "" {
		cfg.Gateways.Speech.ServerURL = "http://localhost:8081"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Store.DatabaseURL == "" {
		errs = append(errs, errors.New("store.database_url is required"))
	}
	if cfg.Queue.BrokerURL == "" {
		errs = append(errs, errors.New("queue.broker_url is required"))
	}

	if cfg.Candidates.MinClipSec <= 0 {
		errs = append(errs, errors.New("candidates.min_clip_sec must be positive"))
	}
	if cfg.Candidates.MaxClipSec <= 0 {
		errs = append(errs, errors.New("candidates.max_clip_sec must be positive"))
	}
	if cfg.Candidates.MinClipSec > 0 && cfg.Candidates.MaxClipSec > 0 && cfg.Candidates.MinClipSec > cfg.Candidates.MaxClipSec {
		errs = append(errs, fmt.Errorf("candidates.min_clip_sec (%d) exceeds candidates.max_clip_sec (%d)", cfg.Candidates.MinClipSec, cfg.Candidates.MaxClipSec))
	}
	if cfg.Candidates.ShiftSec <= 0 {
		errs = append(errs, errors.New("candidates.shift_sec must be positive"))
	}

	if cfg.Shortlist.SendMax > 0 && cfg.Shortlist.Max > 0 && cfg.Shortlist.Max > cfg.Shortlist.SendMax {
		errs = append(errs, fmt.Errorf("shortlist.max (%d) exceeds shortlist.send_max (%d)", cfg.Shortlist.Max, cfg.Shortlist.SendMax))
	}

	if cfg.Poller.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("poller.interval_seconds must be positive"))
	}

	if cfg.Gateways.LLM.APIKey == "" {
		errs = append(errs, errors.New("gateways.llm.api_key is required"))
	}

	return errors.Join(errs...)
}
