package fraud

import (
	"fmt"
	"sync"
	"time"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// RapidFireRule flags an account that exceeds maxPerMinute transactions.
//
// Counts are kept per account in one-minute buckets keyed by the transaction's
// own timestamp (event time), so replays are deterministic. Each evaluation
// drops buckets older than the minute before the transaction's own bucket, then
// counts the transaction and sums what is left: the current and the previous
// minute. A burst straddling a minute boundary is therefore still caught, at
// the cost of counting up to two minutes of history.
type RapidFireRule struct {
	maxPerMinute int
	now          func() time.Time
	accounts     sync.Map // account id -> *minuteCounter
}

type minuteCounter struct {
	mu      sync.Mutex
	buckets map[int64]int // bucket start (unix seconds) -> count
	evicted bool
}

func NewRapidFireRule(maxPerMinute int) *RapidFireRule {
	return &RapidFireRule{maxPerMinute: maxPerMinute, now: time.Now}
}

func (r *RapidFireRule) Name() string { return RuleRapidFire }

// MaxPerMinute returns the configured limit.
func (r *RapidFireRule) MaxPerMinute() int { return r.maxPerMinute }

// IsFraudulent counts tx against its account. A missing timestamp falls back
// to the current time.
func (r *RapidFireRule) IsFraudulent(tx *transaction.Transaction) (bool, error) {
	ts := tx.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	bucket := ts.Truncate(time.Minute).Unix()
	cutoff := ts.Truncate(time.Minute).Add(-time.Minute)

	for {
		c := r.counter(tx.AccountID)
		c.mu.Lock()
		if c.evicted {
			// Swept between load and lock; retry with a fresh counter.
			c.mu.Unlock()
			continue
		}
		for start := range c.buckets {
			if time.Unix(start, 0).Before(cutoff) {
				delete(c.buckets, start)
			}
		}
		c.buckets[bucket]++
		total := 0
		for _, n := range c.buckets {
			total += n
		}
		c.mu.Unlock()
		return total > r.maxPerMinute, nil
	}
}

func (r *RapidFireRule) Reason(tx *transaction.Transaction) string {
	return fmt.Sprintf("Account %s exceeded %d transactions per minute limit", tx.AccountID, r.maxPerMinute)
}

func (r *RapidFireRule) counter(accountID string) *minuteCounter {
	if v, ok := r.accounts.Load(accountID); ok {
		return v.(*minuteCounter)
	}
	v, _ := r.accounts.LoadOrStore(accountID, &minuteCounter{buckets: make(map[int64]int)})
	return v.(*minuteCounter)
}

// Sweep forgets accounts whose newest bucket started more than two minutes
// before now. It returns how many accounts were removed.
func (r *RapidFireRule) Sweep(now time.Time) int {
	removed := 0
	r.accounts.Range(func(key, value any) bool {
		c := value.(*minuteCounter)
		c.mu.Lock()
		stale := true
		for start := range c.buckets {
			if !time.Unix(start, 0).Add(2 * time.Minute).Before(now) {
				stale = false
				break
			}
		}
		if stale {
			c.evicted = true
			r.accounts.Delete(key)
			removed++
		}
		c.mu.Unlock()
		return true
	})
	return removed
}

// Tracked returns the number of accounts with live counters.
func (r *RapidFireRule) Tracked() int {
	n := 0
	r.accounts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
