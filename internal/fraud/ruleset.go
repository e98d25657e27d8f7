package fraud

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/config"
)

// RuleSet owns the rule instances built from configuration. The stateful and
// mutable rules are kept across reloads so counters and runtime blacklist
// additions are not lost when custom rules change.
type RuleSet struct {
	LargeAmount *LargeAmountRule
	Suspicious  *SuspiciousAccountRule
	RapidFire   *RapidFireRule
	Detector    *Detector
	logger      *slog.Logger
}

// NewRuleSet builds the built-in rules followed by the custom expression rules.
func NewRuleSet(cfg config.RulesConf, logger *slog.Logger) (*RuleSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	threshold, err := decimal.NewFromString(cfg.LargeAmountThreshold)
	if err != nil {
		return nil, fmt.Errorf("large amount threshold %q: %w", cfg.LargeAmountThreshold, err)
	}
	rs := &RuleSet{
		LargeAmount: NewLargeAmountRule(threshold),
		Suspicious:  NewSuspiciousAccountRule(cfg.SuspiciousAccounts),
		RapidFire:   NewRapidFireRule(cfg.RapidFireMaxPerMinute),
		logger:      logger,
	}
	rules, err := rs.compose(cfg.Custom)
	if err != nil {
		return nil, err
	}
	rs.Detector = NewDetector(logger, rules...)
	return rs, nil
}

// Reload applies a new rules config: the configured blacklist is replaced
// (runtime additions are kept) and the custom rules recompiled. Threshold and rapid-fire limit need a restart. On error
// nothing changes.
func (rs *RuleSet) Reload(cfg config.RulesConf) error {
	rules, err := rs.compose(cfg.Custom)
	if err != nil {
		return err
	}
	rs.Suspicious.Replace(cfg.SuspiciousAccounts)
	rs.Detector.SwapRules(rules)
	rs.logger.Info("fraud rules reloaded",
		"rules", len(rules), "blacklist", len(rs.Suspicious.Accounts()))
	return nil
}

// RunSweeper evicts idle rapid-fire counters every interval until stop is closed.
func (rs *RuleSet) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			if n := rs.RapidFire.Sweep(now); n > 0 {
				rs.logger.Debug("rapid fire counters evicted", "accounts", n, "tracked", rs.RapidFire.Tracked())
			}
		case <-stop:
			return
		}
	}
}

func (rs *RuleSet) compose(custom []config.CustomRule) ([]Rule, error) {
	rules := []Rule{rs.LargeAmount, rs.Suspicious, rs.RapidFire}
	for _, c := range custom {
		r, err := NewExpressionRule(c.Name, c.Expression, c.Reason)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
