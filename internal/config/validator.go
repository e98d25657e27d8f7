package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/condition"
)

var (
	transportKinds = []string{"memory", "redis"}
	sinkNames      = []string{"log", "redis"}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"text", "json"}
)

// Validate checks the config for:
//   - Non-positive sizes and durations
//   - A parseable, non-negative large amount threshold
//   - Duplicate or unparseable custom rules
//   - Unknown transport, sink, log level or format names
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	p := cfg.Pipeline
	if p.RingSize <= 0 {
		add("pipeline.ring_size must be positive, got %d", p.RingSize)
	}
	if p.Workers <= 0 {
		add("pipeline.workers must be positive, got %d", p.Workers)
	}
	if p.QueueCapacity <= 0 {
		add("pipeline.queue_capacity must be positive, got %d", p.QueueCapacity)
	}
	if p.ShutdownTimeout < 0 {
		add("pipeline.shutdown_timeout must not be negative")
	}

	r := cfg.Rules
	if d, err := decimal.NewFromString(r.LargeAmountThreshold); err != nil {
		add("rules.large_amount_threshold %q is not a number", r.LargeAmountThreshold)
	} else if d.IsNegative() {
		add("rules.large_amount_threshold must not be negative")
	}
	if r.RapidFireMaxPerMinute <= 0 {
		add("rules.rapid_fire_max_per_minute must be positive, got %d", r.RapidFireMaxPerMinute)
	}
	names := make(map[string]int)
	for i, c := range r.Custom {
		if c.Name == "" {
			add("rules.custom[%d]: name is required", i)
			continue
		}
		if prev, ok := names[c.Name]; ok {
			add("duplicate rule name %q (rules.custom[%d] and [%d])", c.Name, prev, i)
		} else {
			names[c.Name] = i
		}
		if c.Expression == "" {
			add("rule %s: expression is required", c.Name)
			continue
		}
		if _, err := condition.Parse(c.Expression); err != nil {
			add("rule %s: %v", c.Name, err)
		}
	}

	if !slices.Contains(transportKinds, cfg.Transport.Kind) {
		add("transport.kind %q is not one of %v", cfg.Transport.Kind, transportKinds)
	}
	for _, s := range cfg.Alerts.Sinks {
		if !slices.Contains(sinkNames, s) {
			add("alerts.sinks: unknown sink %q", s)
		}
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.Logging.Level)) {
		add("logging.level %q is not one of %v", cfg.Logging.Level, logLevels)
	}
	if !slices.Contains(logFormats, strings.ToLower(cfg.Logging.Format)) {
		add("logging.format %q is not one of %v", cfg.Logging.Format, logFormats)
	}
	if f := cfg.Producer.FraudRate; f < 0 || f > 1 {
		add("producer.fraud_rate must be within [0, 1], got %v", f)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
