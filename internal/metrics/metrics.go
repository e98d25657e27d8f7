// Package metrics exports pipeline telemetry as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
	"github.com/laozhen/realtime-fraud-detection-system/internal/fraud"
)

const namespace = "fraud"

var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// Telemetry implements engine.Telemetry.
type Telemetry struct {
	TransactionsAdmitted   prometheus.Counter
	TransactionsProcessed  *prometheus.CounterVec
	ProcessingDuration     prometheus.Histogram
	EndToEndDuration       prometheus.Histogram
	AlertsGenerated        *prometheus.CounterVec
	RuleViolations         *prometheus.CounterVec
	HighLatencyEvents      prometheus.Counter
	CallerRunsEvents       prometheus.Counter
	BufferUtilizationRatio prometheus.Gauge
	MalformedMessages      prometheus.Counter
}

var _ engine.Telemetry = (*Telemetry)(nil)

// New registers the collectors with reg (prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Telemetry {
	f := promauto.With(reg)
	return &Telemetry{
		TransactionsAdmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_admitted_total",
			Help:      "Total number of transactions published into the ring buffer.",
		}),
		TransactionsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_processed_total",
			Help:      "Total number of transactions that reached a terminal state, labelled by outcome.",
		}, []string{"outcome"}),
		ProcessingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_ms",
			Help:      "Time spent analyzing, alerting and acknowledging, in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		EndToEndDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "end_to_end_duration_ms",
			Help:      "Admission to completion latency in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		AlertsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of fraud alerts, labelled by severity.",
		}, []string{"severity"}),
		RuleViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_violations_total",
			Help:      "Total number of rule violations, labelled by rule.",
		}, []string{"rule"}),
		HighLatencyEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "high_latency_total",
			Help:      "Transactions whose end-to-end latency exceeded the configured threshold.",
		}),
		CallerRunsEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_runs_total",
			Help:      "Tasks run on the dispatcher because the worker queue was full.",
		}),
		BufferUtilizationRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_utilization_ratio",
			Help:      "Current ring buffer utilization (0–1).",
		}),
		MalformedMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Messages dropped by ingestion because they could not be decoded.",
		}),
	}
}

func (t *Telemetry) Admitted() { t.TransactionsAdmitted.Inc() }

func (t *Telemetry) Processed(outcome engine.Outcome, processing, endToEnd time.Duration) {
	t.TransactionsProcessed.WithLabelValues(string(outcome)).Inc()
	t.ProcessingDuration.Observe(ms(processing))
	t.EndToEndDuration.Observe(ms(endToEnd))
}

func (t *Telemetry) Alerted(a *fraud.Alert) {
	t.AlertsGenerated.WithLabelValues(string(a.Severity)).Inc()
	for _, v := range a.Violations {
		t.RuleViolations.WithLabelValues(v.Rule).Inc()
	}
}

func (t *Telemetry) HighLatency() { t.HighLatencyEvents.Inc() }

func (t *Telemetry) CallerRuns() { t.CallerRunsEvents.Inc() }

func (t *Telemetry) BufferUtilization(ratio float64) { t.BufferUtilizationRatio.Set(ratio) }

// Malformed counts a message dropped by ingestion.
func (t *Telemetry) Malformed() { t.MalformedMessages.Inc() }

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
