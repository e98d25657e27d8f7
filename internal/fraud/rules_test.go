package fraud

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestLargeAmountRule(t *testing.T) {
	rule := NewLargeAmountRule(decimal.NewFromInt(10000))
	cases := []struct {
		name   string
		amount decimal.NullDecimal
		want   bool
	}{
		{name: "at threshold", amount: amount("10000.00"), want: false},
		{name: "one cent over", amount: amount("10000.01"), want: true},
		{name: "well under", amount: amount("15.99"), want: false},
		{name: "null amount", amount: decimal.NullDecimal{}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rule.IsFraudulent(&transaction.Transaction{ID: "TX", Amount: tc.amount})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsFraudulent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSuspiciousAccountRule(t *testing.T) {
	rule := NewSuspiciousAccountRule([]string{"ACCT666"})
	cases := map[string]bool{
		"ACCT666": true,
		"acct666": false,
		"ACCT667": false,
		"":        false,
	}
	for account, want := range cases {
		got, _ := rule.IsFraudulent(&transaction.Transaction{ID: "TX", AccountID: account})
		if got != want {
			t.Errorf("account %q: got %v, want %v", account, got, want)
		}
	}
	if !rule.AddToBlacklist("ACCT777") {
		t.Fatal("AddToBlacklist reported an existing entry")
	}
	if rule.AddToBlacklist("ACCT777") {
		t.Fatal("AddToBlacklist added a duplicate")
	}
	if got := rule.Accounts(); len(got) != 2 || got[0] != "ACCT666" || got[1] != "ACCT777" {
		t.Fatalf("Accounts() = %v", got)
	}
}

func TestSuspiciousAccountRule_ConcurrentAddAndRead(t *testing.T) {
	rule := NewSuspiciousAccountRule([]string{"ACCT666"})
	var wg sync.WaitGroup
	var misses atomic.Int64
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rule.AddToBlacklist(fmt.Sprintf("ACCT-%d-%d", w, i))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if !rule.Contains("ACCT666") {
					misses.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if misses.Load() != 0 {
		t.Fatalf("reader missed a stable entry %d times", misses.Load())
	}
	if n := len(rule.Accounts()); n != 801 {
		t.Fatalf("blacklist has %d entries, want 801", n)
	}
}

func rapid(account string, ts time.Time) *transaction.Transaction {
	return &transaction.Transaction{ID: "TX", AccountID: account, Timestamp: ts}
}

func TestRapidFireRule_Window(t *testing.T) {
	for _, start := range []time.Time{
		time.Date(2024, 3, 1, 12, 0, 55, 0, time.UTC),
		time.Date(2024, 3, 1, 12, 0, 58, 0, time.UTC),
	} {
		t.Run(start.Format("15:04:05"), func(t *testing.T) {
			rule := NewRapidFireRule(5)
			for i := 0; i < 5; i++ {
				got, _ := rule.IsFraudulent(rapid("A", start.Add(time.Duration(i)*time.Second)))
				if got {
					t.Fatalf("transaction %d flagged under the limit", i+1)
				}
			}
			if got, _ := rule.IsFraudulent(rapid("A", start.Add(5*time.Second))); !got {
				t.Fatal("sixth transaction within the minute not flagged")
			}
			// Two buckets later: everything before it has been pruned.
			if got, _ := rule.IsFraudulent(rapid("A", start.Add(65*time.Second))); got {
				t.Fatal("transaction after the window was flagged")
			}
		})
	}
}

func TestRapidFireRule_BurstAcrossMinuteBoundary(t *testing.T) {
	rule := NewRapidFireRule(5)
	start := time.Date(2024, 3, 1, 10, 0, 50, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if got, _ := rule.IsFraudulent(rapid("A", start.Add(time.Duration(i)*time.Second))); got {
			t.Fatalf("transaction %d flagged under the limit", i+1)
		}
	}
	if got, _ := rule.IsFraudulent(rapid("A", start.Add(15*time.Second))); !got {
		t.Fatal("sixth transaction 15s after the first was not flagged across the minute boundary")
	}
}

func TestRapidFireRule_AccountsIsolated(t *testing.T) {
	rule := NewRapidFireRule(1)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if got, _ := rule.IsFraudulent(rapid("A", ts)); got {
		t.Fatal("first A flagged")
	}
	if got, _ := rule.IsFraudulent(rapid("B", ts)); got {
		t.Fatal("first B flagged: counters leak across accounts")
	}
	if got, _ := rule.IsFraudulent(rapid("A", ts)); !got {
		t.Fatal("second A not flagged")
	}
}

func TestRapidFireRule_MissingTimestampUsesClock(t *testing.T) {
	rule := NewRapidFireRule(1)
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rule.now = func() time.Time { return now }

	if got, _ := rule.IsFraudulent(rapid("A", time.Time{})); got {
		t.Fatal("first transaction flagged")
	}
	if got, _ := rule.IsFraudulent(rapid("A", now.Add(time.Second))); !got {
		t.Fatal("timestamp-less transaction was not counted in the current minute")
	}
}

func TestRapidFireRule_ConcurrentSameAccount(t *testing.T) {
	const (
		workers = 8
		each    = 100
		limit   = 5
	)
	rule := NewRapidFireRule(limit)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var clean atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if got, _ := rule.IsFraudulent(rapid("HOT", ts)); !got {
					clean.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if clean.Load() != limit {
		t.Fatalf("%d transactions passed, want exactly %d", clean.Load(), limit)
	}
}

func TestRapidFireRule_Sweep(t *testing.T) {
	rule := NewRapidFireRule(5)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rule.IsFraudulent(rapid("OLD", ts))
	rule.IsFraudulent(rapid("NEW", ts.Add(3*time.Minute)))

	if n := rule.Sweep(ts.Add(3 * time.Minute)); n != 1 {
		t.Fatalf("Sweep removed %d accounts, want 1", n)
	}
	if rule.Tracked() != 1 {
		t.Fatalf("Tracked() = %d, want 1", rule.Tracked())
	}
	// A swept account starts from zero.
	if got, _ := rule.IsFraudulent(rapid("OLD", ts.Add(3*time.Minute))); got {
		t.Fatal("evicted account flagged on first transaction")
	}
}

func TestSeverityFor(t *testing.T) {
	cases := map[int]Severity{0: SeverityNone, 1: SeverityMedium, 2: SeverityHigh, 3: SeverityCritical, 7: SeverityCritical}
	for n, want := range cases {
		if got := SeverityFor(n); got != want {
			t.Errorf("SeverityFor(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestExpressionRule(t *testing.T) {
	rule, err := NewExpressionRule("HIGH_RISK_TRAVEL", `merchant_category == "TRAVEL" AND amount > 3000`, "")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	tx := &transaction.Transaction{ID: "TX9", MerchantCategory: "TRAVEL", Amount: amount("4000")}
	if got, err := rule.IsFraudulent(tx); err != nil || !got {
		t.Fatalf("got %v, %v; want true, nil", got, err)
	}
	if rule.Reason(tx) == "" {
		t.Fatal("empty reason")
	}
	if _, err := NewExpressionRule("BAD", "amount >>", ""); err == nil {
		t.Fatal("expected compile error")
	}
}
