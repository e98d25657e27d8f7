package fraud

import (
	"strings"
	"time"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// Severity grades an alert by how many rules fired.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityFor maps a violation count to a severity: 0 none, 1 medium, 2 high,
// 3 or more critical.
func SeverityFor(violations int) Severity {
	switch {
	case violations <= 0:
		return SeverityNone
	case violations == 1:
		return SeverityMedium
	case violations == 2:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Violation is one triggered rule.
type Violation struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Alert is produced when at least one rule fires. It holds its own copy of the
// transaction so it stays valid after the ring buffer slot is reused.
type Alert struct {
	ID          string                  `json:"alert_id"`
	Transaction transaction.Transaction `json:"transaction"`
	Violations  []Violation             `json:"violations"`
	Severity    Severity                `json:"severity"`
	DetectedAt  time.Time               `json:"detected_at"`
	Message     string                  `json:"message"`
}

func summarize(violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.Rule + ": " + v.Reason
	}
	return "FRAUD DETECTED: " + strings.Join(parts, ", ")
}
