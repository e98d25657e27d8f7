package fraud

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// SuspiciousAccountRule flags transactions from blacklisted accounts (exact,
// case-sensitive match). The blacklist is copy-on-write: readers load an
// immutable set without locking, writers publish a new set.
//
// The published set is the configured accounts plus those added at runtime;
// Replace swaps only the configured part.
type SuspiciousAccountRule struct {
	mu         sync.Mutex // serializes writers, guards configured and added
	configured map[string]struct{}
	added      map[string]struct{}
	accounts   atomic.Pointer[map[string]struct{}]
}

func NewSuspiciousAccountRule(accounts []string) *SuspiciousAccountRule {
	r := &SuspiciousAccountRule{added: make(map[string]struct{})}
	r.Replace(accounts)
	return r
}

func (r *SuspiciousAccountRule) Name() string { return RuleSuspiciousAccount }

func (r *SuspiciousAccountRule) IsFraudulent(tx *transaction.Transaction) (bool, error) {
	if tx.AccountID == "" {
		return false, nil
	}
	return r.Contains(tx.AccountID), nil
}

func (r *SuspiciousAccountRule) Reason(tx *transaction.Transaction) string {
	return fmt.Sprintf("Account %s is on the suspicious accounts blacklist", tx.AccountID)
}

// Contains reports whether accountID is blacklisted.
func (r *SuspiciousAccountRule) Contains(accountID string) bool {
	_, ok := (*r.accounts.Load())[accountID]
	return ok
}

// AddToBlacklist adds an account. It reports false if it was already present.
// Runtime additions survive Replace.
func (r *SuspiciousAccountRule) AddToBlacklist(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.accounts.Load()
	if _, ok := cur[accountID]; ok {
		return false
	}
	r.added[accountID] = struct{}{}
	next := maps.Clone(cur)
	next[accountID] = struct{}{}
	r.accounts.Store(&next)
	return true
}

// Replace swaps the configured blacklist, e.g. on configuration reload.
func (r *SuspiciousAccountRule) Replace(accounts []string) {
	configured := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if a != "" {
			configured[a] = struct{}{}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configured = configured
	next := maps.Clone(configured)
	maps.Copy(next, r.added)
	r.accounts.Store(&next)
}

// Accounts returns the blacklist sorted.
func (r *SuspiciousAccountRule) Accounts() []string {
	return slices.Sorted(maps.Keys(*r.accounts.Load()))
}
