package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformed is returned when a wire payload cannot be turned into a Transaction.
var ErrMalformed = errors.New("malformed transaction")

// Type is the kind of money movement.
type Type string

const (
	TypePurchase   Type = "PURCHASE"
	TypeWithdrawal Type = "WITHDRAWAL"
	TypeTransfer   Type = "TRANSFER"
	TypeRefund     Type = "REFUND"
)

// Types lists every known Type in declaration order.
var Types = []Type{TypePurchase, TypeWithdrawal, TypeTransfer, TypeRefund}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypePurchase, TypeWithdrawal, TypeTransfer, TypeRefund:
		return true
	}
	return false
}

// UnmarshalJSON accepts the type name in any case.
func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = ""
		return nil
	}
	v := Type(strings.ToUpper(s))
	if !v.Valid() {
		return fmt.Errorf("unknown transaction type %q", s)
	}
	*t = v
	return nil
}

// Transaction is the canonical input model. It is treated as an immutable value
// once decoded; the pipeline copies it into ring buffer slots.
type Transaction struct {
	ID               string              `json:"transactionId"`
	AccountID        string              `json:"accountId"`
	Amount           decimal.NullDecimal `json:"amount"` // Valid=false when absent or null
	Currency         string              `json:"currency"`
	Timestamp        time.Time           `json:"timestamp"` // zero when absent
	MerchantID       string              `json:"merchantId"`
	MerchantCategory string              `json:"merchantCategory"`
	Location         string              `json:"location"`
	Type             Type                `json:"type"`
}

// HasAmount reports whether the amount field was present.
func (t *Transaction) HasAmount() bool { return t.Amount.Valid }

// Decode parses a JSON payload and validates it.
func Decode(payload []byte) (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Validate checks the invariants the rest of the system relies on.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transactionId is required", ErrMalformed)
	}
	if t.Amount.Valid && t.Amount.Decimal.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", ErrMalformed, t.Amount.Decimal)
	}
	if t.Type != "" && !t.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, t.Type)
	}
	return nil
}

// Encode renders the transaction in its wire form.
func Encode(t Transaction) ([]byte, error) {
	return json.Marshal(t)
}
