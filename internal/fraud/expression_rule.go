package fraud

import (
	"fmt"

	"github.com/laozhen/realtime-fraud-detection-system/internal/condition"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// ExpressionRule is a rule defined in configuration as a condition expression.
type ExpressionRule struct {
	name   string
	source string
	expr   condition.Expr
	reason string
}

// NewExpressionRule compiles source. reason may be empty, in which case the
// expression itself is reported.
func NewExpressionRule(name, source, reason string) (*ExpressionRule, error) {
	expr, err := condition.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("rule %s: parse %q: %w", name, source, err)
	}
	return &ExpressionRule{name: name, source: source, expr: expr, reason: reason}, nil
}

func (r *ExpressionRule) Name() string { return r.name }

// Expression returns the source text.
func (r *ExpressionRule) Expression() string { return r.source }

func (r *ExpressionRule) IsFraudulent(tx *transaction.Transaction) (bool, error) {
	return condition.Evaluate(r.expr, tx)
}

func (r *ExpressionRule) Reason(tx *transaction.Transaction) string {
	if r.reason != "" {
		return r.reason
	}
	return fmt.Sprintf("Transaction %s matched %q", tx.ID, r.source)
}
