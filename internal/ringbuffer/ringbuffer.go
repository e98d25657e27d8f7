// Package ringbuffer implements the fixed-capacity slot arena that sits between
// transaction admission and analysis.
//
// Slots are pre-allocated once and indexed by sequence&mask. A slot moves through
// free -> claimed -> published -> consumed -> free; the producer that claimed it is the
// only writer until publish, the single consumer reads it after that, and Clear hands
// it back for sequence+capacity. Producers block (park on a condition variable) when
// the slot for the next sequence is still in use.
package ringbuffer

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidCapacity is returned by New when capacity is not a positive power of two.
	ErrInvalidCapacity = errors.New("ringbuffer: capacity must be a positive power of two")
	// ErrClosed is returned by Claim once Close or Halt has been called.
	ErrClosed = errors.New("ringbuffer: closed")
)

type slotState uint8

const (
	stateFree slotState = iota
	stateClaimed
	statePublished
	stateConsumed
)

func (s slotState) String() string {
	switch s {
	case stateFree:
		return "free"
	case stateClaimed:
		return "claimed"
	case statePublished:
		return "published"
	case stateConsumed:
		return "consumed"
	}
	return fmt.Sprintf("state(%d)", s)
}

// Slot is one reusable cell of the arena. Its contents are valid between
// Publish and Clear for the sequence it currently holds.
type Slot[T any] struct {
	turn       uint64 // sequence allowed to claim this slot next
	seq        uint64
	state      slotState
	admittedAt time.Time
	value      T
}

// Sequence returns the sequence currently held by the slot.
func (s *Slot[T]) Sequence() uint64 { return s.seq }

// AdmittedAt returns when the slot was populated.
func (s *Slot[T]) AdmittedAt() time.Time { return s.admittedAt }

// Value returns the slot payload. The pointer is borrowed: it must not be
// retained after Clear is called for this sequence.
func (s *Slot[T]) Value() *T { return &s.value }

// RingBuffer is a multi-producer, single-consumer ring of pre-allocated slots.
type RingBuffer[T any] struct {
	mask  uint64
	slots []Slot[T]

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	next     uint64 // next sequence handed to a producer
	cursor   uint64 // next sequence the consumer reads
	closed   bool
	halted   bool

	inFlight atomic.Int64 // claimed and not yet cleared
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1).
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// New allocates a ring with the given capacity, which must be a power of two.
// Callers that accept arbitrary sizes round up with NextPowerOfTwo first.
func New[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	r := &RingBuffer[T]{
		mask:  uint64(capacity - 1),
		slots: make([]Slot[T], capacity),
	}
	for i := range r.slots {
		r.slots[i].turn = uint64(i)
	}
	r.notFull = sync.NewCond(&r.mu)
	r.notEmpty = sync.NewCond(&r.mu)
	return r, nil
}

// Capacity returns the number of slots.
func (r *RingBuffer[T]) Capacity() int { return len(r.slots) }

// Claim reserves the next sequence, blocking while its slot is still occupied.
// It fails only after Close or Halt.
func (r *RingBuffer[T]) Claim() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.closed {
			return 0, ErrClosed
		}
		s := &r.slots[r.next&r.mask]
		if s.turn == r.next && s.state == stateFree {
			seq := r.next
			r.next++
			s.seq = seq
			s.state = stateClaimed
			r.inFlight.Add(1)
			return seq, nil
		}
		r.notFull.Wait()
	}
}

// Populate writes v into the slot claimed for seq.
func (r *RingBuffer[T]) Populate(seq uint64, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.mustSlot(seq, stateClaimed, "populate")
	s.value = v
	s.admittedAt = time.Now()
}

// Publish makes seq visible to the consumer. Sequences may be published out of
// order; the consumer only advances over a contiguous published run.
func (r *RingBuffer[T]) Publish(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.mustSlot(seq, stateClaimed, "publish")
	s.state = statePublished
	if seq == r.cursor {
		r.notEmpty.Signal()
	}
}

// Next blocks until the slot at the consumer cursor is published and returns it.
// It returns false once the ring is halted, or closed with every claimed
// sequence consumed. Only one goroutine may call Next.
func (r *RingBuffer[T]) Next() (uint64, *Slot[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.halted {
			return 0, nil, false
		}
		if r.cursor < r.next {
			s := &r.slots[r.cursor&r.mask]
			if s.seq == r.cursor && s.state == statePublished {
				s.state = stateConsumed
				seq := r.cursor
				r.cursor++
				return seq, s, true
			}
		} else if r.closed {
			return 0, nil, false
		}
		r.notEmpty.Wait()
	}
}

// Drain yields published slots in sequence order until Next reports the end.
func (r *RingBuffer[T]) Drain() iter.Seq2[uint64, *Slot[T]] {
	return func(yield func(uint64, *Slot[T]) bool) {
		for {
			seq, s, ok := r.Next()
			if !ok || !yield(seq, s) {
				return
			}
		}
	}
}

// Clear releases the slot held by seq after its processing reached a terminal
// state. Clearing a sequence that is not the slot's consumed occupant panics.
func (r *RingBuffer[T]) Clear(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.mustSlot(seq, stateConsumed, "clear")
	var zero T
	s.value = zero
	s.admittedAt = time.Time{}
	s.state = stateFree
	s.turn = seq + uint64(len(r.slots))
	r.inFlight.Add(-1)
	r.notFull.Broadcast()
}

// Close stops new claims. Sequences already claimed can still be published and
// drained.
func (r *RingBuffer[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.notFull.Broadcast()
	r.notEmpty.Broadcast()
}

// Halt closes the ring and makes Next return immediately, abandoning anything
// still buffered.
func (r *RingBuffer[T]) Halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.halted = true
	r.notFull.Broadcast()
	r.notEmpty.Broadcast()
}

// RemainingCapacity returns the number of slots not held by an in-flight sequence.
func (r *RingBuffer[T]) RemainingCapacity() int {
	rem := len(r.slots) - int(r.inFlight.Load())
	if rem < 0 {
		return 0
	}
	return rem
}

// Utilization returns in-flight slots / capacity (0–1).
func (r *RingBuffer[T]) Utilization() float64 {
	return float64(r.inFlight.Load()) / float64(len(r.slots))
}

// mustSlot returns the slot for seq, panicking when it does not hold seq in the
// expected state. Callers hold r.mu.
func (r *RingBuffer[T]) mustSlot(seq uint64, want slotState, op string) *Slot[T] {
	s := &r.slots[seq&r.mask]
	if s.seq != seq || s.state != want {
		panic(fmt.Sprintf("ringbuffer: %s on sequence %d: slot holds %d in state %s, want %s",
			op, seq, s.seq, s.state, want))
	}
	return s
}
