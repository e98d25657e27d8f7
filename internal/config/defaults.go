package config

import "time"

// Default values applied to zero fields after parsing.
const (
	DefaultRingSize              = 8192
	DefaultWorkers               = 4
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultHighLatencyThreshold  = 100 * time.Millisecond
	DefaultLargeAmountThreshold  = "10000"
	DefaultRapidFireMaxPerMinute = 5
	DefaultRapidFireSweep        = time.Minute
	DefaultTransportKind         = "memory"
	DefaultHTTPAddr              = ":8080"
)

// DefaultSuspiciousAccounts is used when the config has no blacklist key.
var DefaultSuspiciousAccounts = []string{"ACCT001", "ACCT666", "ACCT999"}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{Version: "1"}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.RingSize == 0 {
		p.RingSize = DefaultRingSize
	}
	if p.Workers == 0 {
		p.Workers = DefaultWorkers
	}
	if p.QueueCapacity == 0 {
		p.QueueCapacity = max(p.RingSize/2, 1)
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	if p.HighLatencyThreshold == 0 {
		p.HighLatencyThreshold = DefaultHighLatencyThreshold
	}

	r := &cfg.Rules
	if r.LargeAmountThreshold == "" {
		r.LargeAmountThreshold = DefaultLargeAmountThreshold
	}
	if r.SuspiciousAccounts == nil {
		r.SuspiciousAccounts = append([]string(nil), DefaultSuspiciousAccounts...)
	}
	if r.RapidFireMaxPerMinute == 0 {
		r.RapidFireMaxPerMinute = DefaultRapidFireMaxPerMinute
	}
	if r.RapidFireSweep == 0 {
		r.RapidFireSweep = DefaultRapidFireSweep
	}

	t := &cfg.Transport
	if t.Kind == "" {
		t.Kind = DefaultTransportKind
	}
	if t.Redis.Addr == "" {
		t.Redis.Addr = "localhost:6379"
	}
	if t.Redis.Queue == "" {
		t.Redis.Queue = "transactions"
	}
	if t.Redis.ProcessingQueue == "" {
		t.Redis.ProcessingQueue = t.Redis.Queue + ":processing"
	}
	if t.Redis.BlockTimeout == 0 {
		t.Redis.BlockTimeout = 5 * time.Second
	}

	a := &cfg.Alerts
	if len(a.Sinks) == 0 {
		a.Sinks = []string{"log"}
	}
	if a.Redis.Addr == "" {
		a.Redis.Addr = t.Redis.Addr
	}
	if a.Redis.List == "" {
		a.Redis.List = "fraud-alerts"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	pr := &cfg.Producer
	if pr.RatePerSecond == 0 {
		pr.RatePerSecond = 100
	}
	if pr.FraudRate == 0 {
		pr.FraudRate = 0.1
	}
	if pr.BurstEvery == 0 {
		pr.BurstEvery = 50
	}
}
