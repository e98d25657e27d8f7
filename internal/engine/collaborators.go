package engine

import (
	"context"
	"time"

	"github.com/laozhen/realtime-fraud-detection-system/internal/fraud"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// Analyzer classifies a transaction. *fraud.Detector satisfies it.
type Analyzer interface {
	Analyze(tx *transaction.Transaction) (*fraud.Alert, error)
}

// AlertSink delivers an alert somewhere outside the pipeline. A delivery
// error fails the transaction, which is then left un-acknowledged.
type AlertSink interface {
	Deliver(ctx context.Context, a *fraud.Alert) error
}

// Acknowledger is the transport-specific ack handle carried with each
// transaction. Acknowledge removes the message from its source queue and must
// be idempotent. A nil Acknowledger means the source needs no ack.
type Acknowledger interface {
	Acknowledge(ctx context.Context) error
}

// Outcome labels a processed transaction.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Telemetry receives fire-and-forget signals from the pipeline.
type Telemetry interface {
	Admitted()
	Processed(outcome Outcome, processing, endToEnd time.Duration)
	Alerted(a *fraud.Alert)
	HighLatency()
	CallerRuns()
	BufferUtilization(ratio float64)
}

type nopTelemetry struct{}

func (nopTelemetry) Admitted()                                       {}
func (nopTelemetry) Processed(Outcome, time.Duration, time.Duration) {}
func (nopTelemetry) Alerted(*fraud.Alert)                            {}
func (nopTelemetry) HighLatency()                                    {}
func (nopTelemetry) CallerRuns()                                     {}
func (nopTelemetry) BufferUtilization(float64)                       {}

type discardSink struct{}

func (discardSink) Deliver(context.Context, *fraud.Alert) error { return nil }
