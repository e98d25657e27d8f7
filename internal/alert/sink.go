// Package alert delivers fraud alerts out of the pipeline.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
	"github.com/laozhen/realtime-fraud-detection-system/internal/fraud"
)

var (
	_ engine.AlertSink = (*LogSink)(nil)
	_ engine.AlertSink = (*RedisSink)(nil)
	_ engine.AlertSink = Fanout(nil)
)

// LogSink writes each alert as a structured error log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, a *fraud.Alert) error {
	rules := make([]string, len(a.Violations))
	for i, v := range a.Violations {
		rules[i] = v.Rule
	}
	s.logger.ErrorContext(ctx, "FRAUD_DETECTED",
		"alert_id", a.ID,
		"tx_id", a.Transaction.ID,
		"account_id", a.Transaction.AccountID,
		"amount", a.Transaction.Amount.Decimal.String(),
		"severity", a.Severity,
		"rules", rules,
		"message", a.Message,
	)
	return nil
}

// redisPusher is the subset of *redis.Client RedisSink uses.
type redisPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisSink pushes alerts as JSON onto a Redis list for downstream consumers.
type RedisSink struct {
	client redisPusher
	list   string
}

func NewRedisSink(client redisPusher, list string) *RedisSink {
	return &RedisSink{client: client, list: list}
}

func (s *RedisSink) Deliver(ctx context.Context, a *fraud.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.ID, err)
	}
	if err := s.client.LPush(ctx, s.list, body).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", s.list, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Fanout delivers to every sink in order. All sinks are attempted; the
// errors are joined.
type Fanout []engine.AlertSink

func (f Fanout) Deliver(ctx context.Context, a *fraud.Alert) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources; the errors are joined.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := Close(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases a sink built by a Registry if it holds resources.
func Close(s engine.AlertSink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
