package alert

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/laozhen/realtime-fraud-detection-system/internal/config"
	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
)

// Factory builds a sink from configuration.
type Factory func(cfg config.AlertsConf, logger *slog.Logger) (engine.AlertSink, error)

// Registry maps sink names to their factories.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the log and redis sinks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("log", func(_ config.AlertsConf, logger *slog.Logger) (engine.AlertSink, error) {
		return NewLogSink(logger), nil
	})
	r.Register("redis", func(cfg config.AlertsConf, _ *slog.Logger) (engine.AlertSink, error) {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		return NewRedisSink(client, cfg.Redis.List), nil
	})
	return r
}

// Register adds a factory. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("alert registry: duplicate sink %q", name))
	}
	r.factories[name] = f
}

// Names returns the registered sink names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Build creates the configured sinks. A single sink is returned as is, several
// are wrapped in a Fanout.
func (r *Registry) Build(cfg config.AlertsConf, logger *slog.Logger) (engine.AlertSink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sinks Fanout
	for _, name := range cfg.Sinks {
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("no alert sink registered as %q", name)
		}
		s, err := f(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("alert sink %s: %w", name, err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}
