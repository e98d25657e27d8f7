// Package engine runs transactions through fraud analysis: producers publish
// into a ring buffer, a single dispatcher drains it in admission order and a
// worker pool analyzes, alerts and acknowledges.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/laozhen/realtime-fraud-detection-system/internal/ringbuffer"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

var (
	// ErrBufferUnavailable is returned by Publish once the pipeline is shutting down.
	ErrBufferUnavailable = errors.New("pipeline: buffer unavailable")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("pipeline: already started")
)

// State is the pipeline lifecycle position.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options sizes the pipeline. Zero values fall back to defaults.
type Options struct {
	RingSize             int // rounded up to a power of two
	Workers              int
	QueueCapacity        int // defaults to RingSize/2
	HighLatencyThreshold time.Duration
	Logger               *slog.Logger
	Telemetry            Telemetry
}

// Stats are running totals since construction.
type Stats struct {
	Admitted   int64 `json:"admitted"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Alerts     int64 `json:"alerts"`
	CallerRuns int64 `json:"caller_runs"`
}

// entry is what a ring slot holds.
type entry struct {
	tx  transaction.Transaction
	ack Acknowledger
}

// task is a borrowed slot handed to the worker pool. The slot stays valid
// until the task clears its sequence.
type task struct {
	seq  uint64
	slot *ringbuffer.Slot[entry]
}

// Pipeline owns the ring buffer, the dispatcher and the worker pool.
type Pipeline struct {
	analyzer    Analyzer
	sink        AlertSink
	telemetry   Telemetry
	logger      *slog.Logger
	highLatency time.Duration
	workers     int
	queueCap    int

	ring      *ringbuffer.RingBuffer[entry]
	state     atomic.Int32
	lifecycle sync.Mutex // serializes Start against shutdown

	ctx          context.Context
	cancel       context.CancelFunc
	pool         *workerPool[task]
	dispatchDone chan struct{}

	shutdownOnce sync.Once
	stopped      chan struct{}
	drained      bool // set before stopped is closed

	admitted, succeeded, failed, alerts, callerRuns atomic.Int64
}

// New builds a pipeline in the Created state. sink may be nil to discard alerts.
func New(analyzer Analyzer, sink AlertSink, opts Options) (*Pipeline, error) {
	if analyzer == nil {
		return nil, errors.New("pipeline: analyzer is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = nopTelemetry{}
	}
	if sink == nil {
		sink = discardSink{}
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 8192
	}
	if size := ringbuffer.NextPowerOfTwo(opts.RingSize); size != opts.RingSize {
		opts.Logger.Warn("ring size is not a power of two, rounding up",
			"configured", opts.RingSize, "effective", size)
		opts.RingSize = size
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = max(opts.RingSize/2, 1)
	}
	if opts.HighLatencyThreshold <= 0 {
		opts.HighLatencyThreshold = 100 * time.Millisecond
	}

	ring, err := ringbuffer.New[entry](opts.RingSize)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		analyzer:     analyzer,
		sink:         sink,
		telemetry:    opts.Telemetry,
		logger:       opts.Logger,
		highLatency:  opts.HighLatencyThreshold,
		workers:      opts.Workers,
		queueCap:     opts.QueueCapacity,
		ring:         ring,
		dispatchDone: make(chan struct{}),
		stopped:      make(chan struct{}),
	}, nil
}

// Start launches the worker pool and the dispatcher.
func (p *Pipeline) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if s := p.State(); s != StateCreated {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, s)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.pool = newWorkerPool(p.ctx, p.workers, p.queueCap, p.process)
	p.state.Store(int32(StateStarted))
	go p.dispatch()
	p.logger.Info("pipeline started",
		"ring_size", p.ring.Capacity(), "workers", p.workers, "queue_capacity", p.queueCap)
	return nil
}

// Publish admits a transaction. It blocks while the ring is full and fails
// only once shutdown has begun. Transactions published before Start are
// buffered until it is called.
func (p *Pipeline) Publish(tx transaction.Transaction, ack Acknowledger) error {
	seq, err := p.ring.Claim()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBufferUnavailable, err)
	}
	p.ring.Populate(seq, entry{tx: tx, ack: ack})
	p.ring.Publish(seq)
	p.admitted.Add(1)
	p.telemetry.Admitted()
	return nil
}

// dispatch is the single consumer of the ring.
func (p *Pipeline) dispatch() {
	defer close(p.dispatchDone)
	for seq, slot := range p.ring.Drain() {
		p.telemetry.BufferUtilization(p.ring.Utilization())
		if !p.pool.Submit(task{seq: seq, slot: slot}) {
			p.callerRuns.Add(1)
			p.telemetry.CallerRuns()
		}
	}
}

// process runs one transaction to a terminal state and releases its slot.
func (p *Pipeline) process(ctx context.Context, t task) {
	e := t.slot.Value()
	admittedAt := t.slot.AdmittedAt()
	defer p.ring.Clear(t.seq)

	start := time.Now()
	err := p.handle(ctx, e)
	processing := time.Since(start)
	endToEnd := time.Since(admittedAt)

	if err != nil {
		p.failed.Add(1)
		p.telemetry.Processed(OutcomeFailure, processing, endToEnd)
		p.logger.Error("transaction processing failed, leaving unacknowledged",
			"tx_id", e.tx.ID, "account_id", e.tx.AccountID, "seq", t.seq, "err", err)
		return
	}
	p.succeeded.Add(1)
	p.telemetry.Processed(OutcomeSuccess, processing, endToEnd)
	if endToEnd > p.highLatency {
		p.telemetry.HighLatency()
		p.logger.Warn("high latency transaction",
			"tx_id", e.tx.ID, "seq", t.seq, "end_to_end", endToEnd, "threshold", p.highLatency)
	}
}

// handle analyzes, delivers any alert, then acknowledges. Any failure,
// including a panic, returns before the ack.
func (p *Pipeline) handle(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	alert, err := p.analyzer.Analyze(&e.tx)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if alert != nil {
		p.alerts.Add(1)
		p.telemetry.Alerted(alert)
		if err := p.sink.Deliver(ctx, alert); err != nil {
			return fmt.Errorf("deliver alert %s: %w", alert.ID, err)
		}
	}
	if e.ack != nil {
		if err := e.ack.Acknowledge(ctx); err != nil {
			return fmt.Errorf("acknowledge: %w", err)
		}
	}
	return nil
}

// Shutdown stops admission and waits up to timeout for every buffered and
// in-flight transaction to reach a terminal state. On timeout it halts the
// ring and the workers, abandoning what is left for upstream redelivery. Either
// way the pipeline ends Stopped. It reports whether everything drained.
// Concurrent and repeated calls wait for the first one and share its result.
func (p *Pipeline) Shutdown(timeout time.Duration) bool {
	p.shutdownOnce.Do(func() {
		p.drained = p.shutdown(timeout)
		p.state.Store(int32(StateStopped))
		close(p.stopped)
	})
	<-p.stopped
	return p.drained
}

func (p *Pipeline) shutdown(timeout time.Duration) bool {
	p.lifecycle.Lock()
	if p.State() == StateCreated {
		p.state.Store(int32(StateStopped))
		p.lifecycle.Unlock()
		p.ring.Halt()
		return true
	}
	p.state.Store(int32(StateDraining))
	p.lifecycle.Unlock()
	p.ring.Close()
	p.logger.Info("pipeline draining", "in_flight", p.InFlight(), "timeout", timeout)

	done := make(chan struct{})
	go func() {
		<-p.dispatchDone
		p.pool.Drain()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		p.cancel()
		p.logger.Info("pipeline stopped", "stats", p.Stats())
		return true
	case <-timer.C:
	}
	p.logger.Warn("shutdown timed out, abandoning in-flight transactions",
		"timeout", timeout, "in_flight", p.InFlight())
	p.ring.Halt()
	p.cancel()
	return false
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Utilization returns the fraction of ring slots in use (0–1).
func (p *Pipeline) Utilization() float64 { return p.ring.Utilization() }

// RemainingCapacity returns how many slots are free.
func (p *Pipeline) RemainingCapacity() int { return p.ring.RemainingCapacity() }

// Capacity returns the effective ring size.
func (p *Pipeline) Capacity() int { return p.ring.Capacity() }

// InFlight returns how many admitted transactions have not reached a terminal state.
func (p *Pipeline) InFlight() int { return p.ring.Capacity() - p.ring.RemainingCapacity() }

// QueueDepth returns how many tasks wait in the worker queue.
func (p *Pipeline) QueueDepth() int {
	p.lifecycle.Lock()
	pool := p.pool
	p.lifecycle.Unlock()
	if pool == nil {
		return 0
	}
	return pool.QueueLen()
}

// Stats returns a snapshot of the running totals.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Admitted:   p.admitted.Load(),
		Succeeded:  p.succeeded.Load(),
		Failed:     p.failed.Load(),
		Alerts:     p.alerts.Load(),
		CallerRuns: p.callerRuns.Load(),
	}
}
