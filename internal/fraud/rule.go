package fraud

import "github.com/laozhen/realtime-fraud-detection-system/internal/transaction"

// Rule names reported in violations and metrics.
const (
	RuleLargeAmount       = "LARGE_AMOUNT_RULE"
	RuleSuspiciousAccount = "SUSPICIOUS_ACCOUNT_RULE"
	RuleRapidFire         = "RAPID_FIRE_RULE"
)

// Rule is a single fraud criterion. Implementations must be safe for
// concurrent use: workers evaluate the same Rule instance in parallel.
type Rule interface {
	// Name identifies the rule in violations and metrics.
	Name() string
	// IsFraudulent evaluates tx. An error means the rule could not decide and
	// is treated as not violated.
	IsFraudulent(tx *transaction.Transaction) (bool, error)
	// Reason describes the violation; only meaningful when IsFraudulent is true.
	Reason(tx *transaction.Transaction) string
}
