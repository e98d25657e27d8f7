package fraud

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// Detector runs every registered rule against a transaction and turns the
// violations into an Alert.
type Detector struct {
	rules  atomic.Pointer[[]Rule]
	logger *slog.Logger
	now    func() time.Time
}

// NewDetector creates a Detector evaluating rules in the given order.
func NewDetector(logger *slog.Logger, rules ...Rule) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{logger: logger, now: time.Now}
	d.SwapRules(rules)
	return d
}

// SwapRules atomically replaces the rule list (used on hot-reload). In-flight
// analyses finish with the list they started with.
func (d *Detector) SwapRules(rules []Rule) {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	d.rules.Store(&cp)
}

// Rules returns the current rule list.
func (d *Detector) Rules() []Rule {
	return *d.rules.Load()
}

// Analyze evaluates all rules in registration order. A rule that errors or
// panics is logged and counted as not violated; the remaining rules still run.
// It returns nil when no rule fired.
func (d *Detector) Analyze(tx *transaction.Transaction) (*Alert, error) {
	if tx == nil {
		return nil, errors.New("analyze: nil transaction")
	}
	start := time.Now()
	rules := d.Rules()

	var violations []Violation
	for _, rule := range rules {
		fired, err := evaluate(rule, tx)
		if err != nil {
			d.logger.Error("fraud rule failed",
				"rule", rule.Name(), "tx_id", tx.ID, "err", err)
			continue
		}
		if !fired {
			continue
		}
		v := Violation{Rule: rule.Name(), Reason: rule.Reason(tx)}
		violations = append(violations, v)
		d.logger.Warn("transaction violated fraud rule",
			"rule", v.Rule, "reason", v.Reason, "tx_id", tx.ID, "account_id", tx.AccountID)
	}

	if len(violations) == 0 {
		d.logger.Debug("transaction passed all fraud checks",
			"tx_id", tx.ID, "rules", len(rules), "duration", time.Since(start))
		return nil, nil
	}

	alert := &Alert{
		ID:          uuid.NewString(),
		Transaction: *tx,
		Violations:  violations,
		Severity:    SeverityFor(len(violations)),
		DetectedAt:  d.now(),
		Message:     summarize(violations),
	}
	d.logger.Info("fraud alert generated",
		"alert_id", alert.ID, "tx_id", tx.ID, "severity", alert.Severity,
		"rule_count", len(violations), "duration", time.Since(start))
	return alert, nil
}

func evaluate(rule Rule, tx *transaction.Transaction) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.IsFraudulent(tx)
}
