// Package ingest feeds the pipeline from a transport.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transport"
)

// Publisher is the admission side of the pipeline.
type Publisher interface {
	Publish(tx transaction.Transaction, ack engine.Acknowledger) error
}

// Adapter receives raw messages, decodes them and publishes them with their
// ack handle. It never acknowledges a well-formed message itself; that happens
// after analysis.
type Adapter struct {
	receiver  transport.Receiver
	pipeline  Publisher
	logger    *slog.Logger
	malformed func()

	received atomic.Int64
	dropped  atomic.Int64
}

// New creates an adapter. onMalformed, if set, is called for every dropped message.
func New(receiver transport.Receiver, pipeline Publisher, logger *slog.Logger, onMalformed func()) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if onMalformed == nil {
		onMalformed = func() {}
	}
	return &Adapter{receiver: receiver, pipeline: pipeline, logger: logger, malformed: onMalformed}
}

// Run loops until ctx ends, the transport closes or the pipeline stops
// accepting transactions. The message in hand when the pipeline refuses it is
// left unacknowledged.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		msg, err := a.receiver.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		a.received.Add(1)

		tx, err := transaction.Decode(msg.Payload)
		if err != nil {
			// A payload that cannot be decoded would only be redelivered until
			// it dead-letters, so drop it now.
			a.dropped.Add(1)
			a.malformed()
			a.logger.Warn("dropping malformed message", "msg_id", msg.ID, "err", err)
			if msg.Ack != nil {
				if err := msg.Ack.Acknowledge(ctx); err != nil {
					a.logger.Error("acknowledge malformed message", "msg_id", msg.ID, "err", err)
				}
			}
			continue
		}

		if err := a.pipeline.Publish(tx, msg.Ack); err != nil {
			if errors.Is(err, engine.ErrBufferUnavailable) {
				a.logger.Info("pipeline closed, ingestion stopping", "tx_id", tx.ID)
				return nil
			}
			return fmt.Errorf("publish %s: %w", tx.ID, err)
		}
	}
}

// Received returns how many messages were taken off the transport.
func (a *Adapter) Received() int64 { return a.received.Load() }

// Dropped returns how many malformed messages were discarded.
func (a *Adapter) Dropped() int64 { return a.dropped.Load() }
