package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const sample = `
version: "2"
pipeline:
  ring_size: 1024
  workers: 8
  shutdown_timeout: 5s
rules:
  large_amount_threshold: "2500.50"
  suspicious_accounts: [ACCT123]
  custom:
    - name: NIGHT_TRAVEL
      expression: merchant_category == "TRAVEL" AND amount > 3000
      reason: large travel purchase
transport:
  kind: redis
  redis:
    queue: incoming
alerts:
  sinks: [log, redis]
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	p := cfg.Pipeline
	if p.RingSize != 1024 || p.Workers != 8 || p.QueueCapacity != 512 {
		t.Fatalf("pipeline %+v", p)
	}
	if p.ShutdownTimeout != 5*time.Second || p.HighLatencyThreshold != DefaultHighLatencyThreshold {
		t.Fatalf("durations %+v", p)
	}
	if cfg.Rules.RapidFireMaxPerMinute != DefaultRapidFireMaxPerMinute {
		t.Fatalf("rapid fire %d", cfg.Rules.RapidFireMaxPerMinute)
	}
	if len(cfg.Rules.SuspiciousAccounts) != 1 || cfg.Rules.SuspiciousAccounts[0] != "ACCT123" {
		t.Fatalf("blacklist %v", cfg.Rules.SuspiciousAccounts)
	}
	if cfg.Transport.Redis.ProcessingQueue != "incoming:processing" {
		t.Fatalf("processing queue %q", cfg.Transport.Redis.ProcessingQueue)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr || cfg.Logging.Format != "text" {
		t.Fatalf("http/logging defaults not applied: %+v %+v", cfg.HTTP, cfg.Logging)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.RingSize != 8192 || cfg.Pipeline.QueueCapacity != 4096 || cfg.Pipeline.Workers != 4 {
		t.Fatalf("pipeline %+v", cfg.Pipeline)
	}
	if strings.Join(cfg.Rules.SuspiciousAccounts, ",") != "ACCT001,ACCT666,ACCT999" {
		t.Fatalf("blacklist %v", cfg.Rules.SuspiciousAccounts)
	}
	// Callers mutating the defaults must not leak into the next Default.
	cfg.Rules.SuspiciousAccounts[0] = "X"
	if Default().Rules.SuspiciousAccounts[0] != "ACCT001" {
		t.Fatal("default blacklist shared between configs")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"threshold":    "version: '1'\nrules:\n  large_amount_threshold: lots\n",
		"negative":     "version: '1'\nrules:\n  large_amount_threshold: '-1'\n",
		"expression":   "version: '1'\nrules:\n  custom:\n    - name: X\n      expression: 'amount >'\n",
		"duplicate":    "version: '1'\nrules:\n  custom:\n    - {name: X, expression: 'amount > 1'}\n    - {name: X, expression: 'amount > 2'}\n",
		"transport":    "version: '1'\ntransport:\n  kind: kafka\n",
		"sink":         "version: '1'\nalerts:\n  sinks: [email]\n",
		"version":      "pipeline:\n  workers: 2\n",
		"workers":      "version: '1'\npipeline:\n  workers: -1\n",
		"fraud rate":   "version: '1'\nproducer:\n  fraud_rate: 2\n",
		"log format":   "version: '1'\nlogging:\n  format: xml\n",
		"unknown yaml": "version: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, sample)
	l, err := NewLoader(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	l.OnChange(func(*Config) { calls.Add(1) })

	writeFile(t, path, strings.Replace(sample, "ACCT123", "ACCT456", 1))
	cfg, err := l.Reload()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules.SuspiciousAccounts[0] != "ACCT456" || calls.Load() != 1 {
		t.Fatalf("reload not applied: %v, callbacks=%d", cfg.Rules.SuspiciousAccounts, calls.Load())
	}

	writeFile(t, path, "version: '1'\nrules:\n  large_amount_threshold: nope\n")
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if l.Config().Rules.SuspiciousAccounts[0] != "ACCT456" || calls.Load() != 1 {
		t.Fatal("invalid file replaced the current config")
	}
}

func TestLoader_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, sample)
	l, err := NewLoader(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	stop, err := l.Watch()
	if err != nil {
		t.Skipf("file watching unavailable: %v", err)
	}
	defer stop()

	writeFile(t, path, strings.Replace(sample, "workers: 8", "workers: 3", 1))
	// A write can surface as several events, some seeing a partial file.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Pipeline.Workers == 3 {
				return
			}
		case <-deadline:
			t.Fatal("no reload after file write")
		}
	}
}

func TestNewLoader_NoPathUsesDefaults(t *testing.T) {
	l, err := NewLoader("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Config().Pipeline.RingSize != DefaultRingSize {
		t.Fatalf("ring size %d", l.Config().Pipeline.RingSize)
	}
	if _, err := l.Watch(); err == nil {
		t.Fatal("Watch without a file should fail")
	}
}
