package transport

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue is an in-process queue with at-least-once delivery. A received
// message stays pending until acknowledged; Redeliver puts pending messages
// whose visibility window expired back on the queue, and after MaxDeliveries
// attempts moves them to the dead-letter list instead.
//
// The queue is owned by whoever builds it and injected into both the producer
// and consumer sides.
type MemoryQueue struct {
	ready         chan *memMessage
	visibility    time.Duration
	maxDeliveries int
	nextID        atomic.Uint64

	mu         sync.Mutex
	pending    map[string]*memMessage
	deadLetter [][]byte
	closed     bool
	done       chan struct{}
}

type memMessage struct {
	id          string
	payload     []byte
	deliveries  int
	deliveredAt time.Time
	acked       bool
}

// NewMemoryQueue creates a queue buffering up to capacity ready messages.
func NewMemoryQueue(capacity int, visibility time.Duration, maxDeliveries int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &MemoryQueue{
		ready:         make(chan *memMessage, capacity),
		visibility:    visibility,
		maxDeliveries: maxDeliveries,
		pending:       make(map[string]*memMessage),
		done:          make(chan struct{}),
	}
}

// Publish blocks while the queue is full.
func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}
	m := &memMessage{
		id:      "mem-" + strconv.FormatUint(q.nextID.Add(1), 10),
		payload: append([]byte(nil), payload...),
	}
	select {
	case q.ready <- m:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive skips messages acknowledged while they were waiting for redelivery.
func (q *MemoryQueue) Receive(ctx context.Context) (Message, error) {
	for {
		select {
		case m := <-q.ready:
			q.mu.Lock()
			if m.acked {
				q.mu.Unlock()
				continue
			}
			m.deliveries++
			m.deliveredAt = time.Now()
			q.pending[m.id] = m
			q.mu.Unlock()
			return Message{ID: m.id, Payload: m.payload, Ack: &memAck{q: q, m: m}}, nil
		case <-q.done:
			return Message{}, ErrClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Redeliver requeues pending messages received before now-visibility. It
// returns how many were requeued and how many were dead-lettered. Messages
// that do not fit in the ready queue stay pending for the next call.
func (q *MemoryQueue) Redeliver(now time.Time) (requeued, deadLettered int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, m := range q.pending {
		if now.Sub(m.deliveredAt) < q.visibility {
			continue
		}
		if m.deliveries >= q.maxDeliveries {
			delete(q.pending, id)
			q.deadLetter = append(q.deadLetter, m.payload)
			deadLettered++
			continue
		}
		select {
		case q.ready <- m:
			delete(q.pending, id)
			requeued++
		default:
		}
	}
	return requeued, deadLettered
}

// RunRedelivery calls Redeliver every interval until ctx ends.
func (q *MemoryQueue) RunRedelivery(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			q.Redeliver(now)
		case <-ctx.Done():
			return
		}
	}
}

// Pending returns how many received messages are not yet acknowledged.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Len returns how many messages wait to be received.
func (q *MemoryQueue) Len() int { return len(q.ready) }

// DeadLetters returns a copy of the dead-lettered payloads.
func (q *MemoryQueue) DeadLetters() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.deadLetter...)
}

// Close wakes blocked callers. Messages still queued are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

type memAck struct {
	q *MemoryQueue
	m *memMessage
}

// Acknowledge is idempotent. A late ack for a message already requeued still
// stops it from being delivered again.
func (a *memAck) Acknowledge(context.Context) error {
	a.q.mu.Lock()
	defer a.q.mu.Unlock()
	a.m.acked = true
	delete(a.q.pending, a.m.id)
	return nil
}
