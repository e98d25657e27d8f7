package fraud

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/config"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRule struct {
	name  string
	fired bool
	err   error
	panic bool
}

func (r stubRule) Name() string { return r.name }

func (r stubRule) IsFraudulent(*transaction.Transaction) (bool, error) {
	if r.panic {
		panic("boom")
	}
	return r.fired, r.err
}

func (r stubRule) Reason(*transaction.Transaction) string { return r.name + " fired" }

func TestDetector_NoViolationNoAlert(t *testing.T) {
	d := NewDetector(quietLogger(), stubRule{name: "A"}, stubRule{name: "B"})
	alert, err := d.Analyze(&transaction.Transaction{ID: "TX1"})
	if err != nil {
		t.Fatal(err)
	}
	if alert != nil {
		t.Fatalf("expected no alert, got %+v", alert)
	}
}

func TestDetector_FailingRulesCountAsClean(t *testing.T) {
	d := NewDetector(quietLogger(),
		stubRule{name: "ERR", err: errors.New("lookup failed")},
		stubRule{name: "PANIC", panic: true},
		stubRule{name: "HIT", fired: true},
	)
	alert, err := d.Analyze(&transaction.Transaction{ID: "TX1"})
	if err != nil {
		t.Fatal(err)
	}
	if alert == nil || len(alert.Violations) != 1 || alert.Violations[0].Rule != "HIT" {
		t.Fatalf("got %+v, want a single HIT violation", alert)
	}
	if alert.Severity != SeverityMedium {
		t.Fatalf("severity %q, want MEDIUM", alert.Severity)
	}
}

func TestDetector_AlertShape(t *testing.T) {
	d := NewDetector(quietLogger(),
		stubRule{name: "FIRST", fired: true},
		stubRule{name: "SKIP"},
		stubRule{name: "SECOND", fired: true},
		stubRule{name: "THIRD", fired: true},
	)
	tx := &transaction.Transaction{ID: "TX7", AccountID: "ACCT1"}
	alert, err := d.Analyze(tx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, v := range alert.Violations {
		got = append(got, v.Rule)
	}
	if strings.Join(got, ",") != "FIRST,SECOND,THIRD" {
		t.Fatalf("violations in order %v", got)
	}
	if alert.Severity != SeverityCritical {
		t.Fatalf("severity %q, want CRITICAL", alert.Severity)
	}
	if alert.ID == "" || alert.DetectedAt.IsZero() {
		t.Fatal("alert id or detection time not set")
	}
	if !strings.HasPrefix(alert.Message, "FRAUD DETECTED: FIRST: FIRST fired") {
		t.Fatalf("message %q", alert.Message)
	}

	// The alert keeps its own copy of the transaction.
	tx.AccountID = "CHANGED"
	if alert.Transaction.AccountID != "ACCT1" {
		t.Fatal("alert shares the caller's transaction")
	}
}

func TestDetector_SwapRules(t *testing.T) {
	d := NewDetector(quietLogger(), stubRule{name: "A", fired: true})
	d.SwapRules([]Rule{stubRule{name: "B"}})
	alert, _ := d.Analyze(&transaction.Transaction{ID: "TX"})
	if alert != nil {
		t.Fatal("old rule still active after swap")
	}
	if len(d.Rules()) != 1 || d.Rules()[0].Name() != "B" {
		t.Fatalf("Rules() = %v", d.Rules())
	}
}

func TestRuleSet_BuiltInsAndReload(t *testing.T) {
	cfg := config.Default().Rules
	cfg.Custom = []config.CustomRule{{Name: "TRAVEL", Expression: `merchant_category == "TRAVEL"`}}
	rs, err := NewRuleSet(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	names := func() []string {
		var out []string
		for _, r := range rs.Detector.Rules() {
			out = append(out, r.Name())
		}
		return out
	}
	want := []string{RuleLargeAmount, RuleSuspiciousAccount, RuleRapidFire, "TRAVEL"}
	if strings.Join(names(), ",") != strings.Join(want, ",") {
		t.Fatalf("rules %v, want %v", names(), want)
	}

	tx := &transaction.Transaction{
		ID:        "TX1",
		AccountID: "ACCT666",
		Amount:    decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}
	alert, _ := rs.Detector.Analyze(tx)
	if alert == nil || len(alert.Violations) != 1 || alert.Violations[0].Rule != RuleSuspiciousAccount {
		t.Fatalf("got %+v, want one suspicious account violation", alert)
	}

	rapidBefore := rs.RapidFire
	rs.Suspicious.AddToBlacklist("RUNTIME1")
	cfg.SuspiciousAccounts = []string{"ACCT123"}
	cfg.Custom = nil
	if err := rs.Reload(cfg); err != nil {
		t.Fatal(err)
	}
	if rs.Suspicious.Contains("ACCT666") || !rs.Suspicious.Contains("ACCT123") {
		t.Fatalf("blacklist not replaced: %v", rs.Suspicious.Accounts())
	}
	if !rs.Suspicious.Contains("RUNTIME1") {
		t.Fatalf("runtime addition lost on reload: %v", rs.Suspicious.Accounts())
	}
	if len(rs.Detector.Rules()) != 3 || rs.RapidFire != rapidBefore {
		t.Fatal("reload did not keep the built-in rule instances")
	}

	cfg.Custom = []config.CustomRule{{Name: "BROKEN", Expression: "amount >"}}
	if err := rs.Reload(cfg); err == nil {
		t.Fatal("expected reload error")
	}
	if len(rs.Detector.Rules()) != 3 {
		t.Fatal("failed reload changed the active rules")
	}
}
