package transaction

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, tx Transaction)
	}{
		{
			name: "full payload",
			payload: `{"transactionId":"TX1","accountId":"ACCT100","amount":10000.01,"currency":"USD",
				"timestamp":"2024-03-01T10:15:30.000Z","merchantId":"MERCHANT_001",
				"merchantCategory":"RETAIL","location":"LONDON","type":"purchase"}`,
			check: func(t *testing.T, tx Transaction) {
				if !tx.HasAmount() || !tx.Amount.Decimal.Equal(decimal.RequireFromString("10000.01")) {
					t.Errorf("amount = %v, want 10000.01", tx.Amount)
				}
				want := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)
				if !tx.Timestamp.Equal(want) {
					t.Errorf("timestamp = %v, want %v", tx.Timestamp, want)
				}
				if tx.Type != TypePurchase {
					t.Errorf("type = %q, want PURCHASE", tx.Type)
				}
			},
		},
		{
			name:    "null amount and timestamp",
			payload: `{"transactionId":"TX2","accountId":"ACCT100","amount":null,"timestamp":null}`,
			check: func(t *testing.T, tx Transaction) {
				if tx.HasAmount() {
					t.Errorf("expected amount to be absent")
				}
				if !tx.Timestamp.IsZero() {
					t.Errorf("expected zero timestamp, got %v", tx.Timestamp)
				}
			},
		},
		{name: "missing id", payload: `{"accountId":"ACCT100"}`, wantErr: true},
		{name: "negative amount", payload: `{"transactionId":"TX3","amount":-1}`, wantErr: true},
		{name: "unknown type", payload: `{"transactionId":"TX4","type":"GIFT"}`, wantErr: true},
		{name: "not json", payload: `{{{`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx, err := Decode([]byte(tc.payload))
			if tc.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.check != nil {
				tc.check(t, tx)
			}
		})
	}
}

func TestEncodeDecodeKeepsAbsentAmount(t *testing.T) {
	b, err := Encode(Transaction{ID: "TX5", AccountID: "ACCT200"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tx, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.HasAmount() {
		t.Errorf("absent amount should stay absent after a round trip")
	}
}
