package fraud

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// LargeAmountRule flags amounts strictly above a threshold. A transaction
// without an amount is never flagged.
type LargeAmountRule struct {
	threshold decimal.Decimal
}

func NewLargeAmountRule(threshold decimal.Decimal) *LargeAmountRule {
	return &LargeAmountRule{threshold: threshold}
}

func (r *LargeAmountRule) Name() string { return RuleLargeAmount }

// Threshold returns the configured limit.
func (r *LargeAmountRule) Threshold() decimal.Decimal { return r.threshold }

func (r *LargeAmountRule) IsFraudulent(tx *transaction.Transaction) (bool, error) {
	if !tx.Amount.Valid {
		return false, nil
	}
	return tx.Amount.Decimal.GreaterThan(r.threshold), nil
}

func (r *LargeAmountRule) Reason(tx *transaction.Transaction) string {
	return fmt.Sprintf("Transaction amount %s %s exceeds threshold of %s",
		tx.Amount.Decimal, tx.Currency, r.threshold)
}
