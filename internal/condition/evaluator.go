package condition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

// Field names usable in expressions.
const (
	FieldID               = "id"
	FieldAccountID        = "account_id"
	FieldAmount           = "amount"
	FieldCurrency         = "currency"
	FieldMerchantID       = "merchant_id"
	FieldMerchantCategory = "merchant_category"
	FieldLocation         = "location"
	FieldType             = "type"
)

// ErrMissingField is returned when an expression reads a field the transaction
// does not carry (only the amount can be absent).
var ErrMissingField = errors.New("field not present")

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
	OpIn       Operator = "in"
)

func (o Operator) valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains, OpMatches, OpIn:
		return true
	}
	return false
}

func knownField(f string) bool {
	switch f {
	case FieldID, FieldAccountID, FieldAmount, FieldCurrency, FieldMerchantID,
		FieldMerchantCategory, FieldLocation, FieldType:
		return true
	}
	return false
}

func textField(tx *transaction.Transaction, f string) string {
	switch f {
	case FieldID:
		return tx.ID
	case FieldAccountID:
		return tx.AccountID
	case FieldCurrency:
		return tx.Currency
	case FieldMerchantID:
		return tx.MerchantID
	case FieldMerchantCategory:
		return tx.MerchantCategory
	case FieldLocation:
		return tx.Location
	case FieldType:
		return string(tx.Type)
	}
	return ""
}

// Evaluate runs a compiled expression against a transaction. AND and OR
// short-circuit.
func Evaluate(e Expr, tx *transaction.Transaction) (bool, error) {
	switch n := e.(type) {
	case *LogicalExpr:
		left, err := Evaluate(n.Left, tx)
		if err != nil {
			return false, err
		}
		if n.Op == "AND" && !left || n.Op == "OR" && left {
			return left, nil
		}
		return Evaluate(n.Right, tx)
	case *NotExpr:
		v, err := Evaluate(n.Expr, tx)
		return !v, err
	case *CompareExpr:
		if n.Field == FieldAmount {
			if !tx.Amount.Valid {
				return false, fmt.Errorf("%s: %w", FieldAmount, ErrMissingField)
			}
			return compareNumber(n.Op, tx.Amount.Decimal, n.Value), nil
		}
		return compareText(n.Op, textField(tx, n.Field), n.Value), nil
	}
	return false, fmt.Errorf("unknown expression %T", e)
}

func compareNumber(op Operator, v decimal.Decimal, lit Literal) bool {
	switch op {
	case OpEq:
		return v.Equal(lit.Num)
	case OpNeq:
		return !v.Equal(lit.Num)
	case OpGt:
		return v.GreaterThan(lit.Num)
	case OpGte:
		return v.GreaterThanOrEqual(lit.Num)
	case OpLt:
		return v.LessThan(lit.Num)
	case OpLte:
		return v.LessThanOrEqual(lit.Num)
	case OpIn:
		for _, item := range lit.List {
			if v.Equal(item.Num) {
				return true
			}
		}
	}
	return false
}

// compareText is case-sensitive, matching how account ids are compared elsewhere.
func compareText(op Operator, v string, lit Literal) bool {
	switch op {
	case OpEq:
		return v == lit.Str
	case OpNeq:
		return v != lit.Str
	case OpContains:
		return strings.Contains(v, lit.Str)
	case OpMatches:
		return lit.Regexp.MatchString(v)
	case OpIn:
		for _, item := range lit.List {
			if v == item.Str {
				return true
			}
		}
	}
	return false
}
