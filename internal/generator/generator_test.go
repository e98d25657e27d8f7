package generator

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

func TestGenerator_Next(t *testing.T) {
	g := New(0, nil, 1)
	limit := decimal.NewFromInt(5000)
	for i := 0; i < 500; i++ {
		tx := g.Next()
		if err := tx.Validate(); err != nil {
			t.Fatalf("generated invalid transaction: %v", err)
		}
		if !tx.Type.Valid() {
			t.Fatalf("invalid type %q", tx.Type)
		}
		if tx.Amount.Decimal.LessThan(decimal.NewFromInt(1)) || tx.Amount.Decimal.GreaterThan(limit) {
			t.Fatalf("clean amount %s out of range", tx.Amount.Decimal)
		}
	}
}

func TestGenerator_FraudRate(t *testing.T) {
	blacklist := []string{"ACCT666"}
	g := New(1, blacklist, 7)
	threshold := decimal.NewFromInt(10000)
	for i := 0; i < 200; i++ {
		tx := g.Next()
		if !slices.Contains(blacklist, tx.AccountID) && !tx.Amount.Decimal.GreaterThan(threshold) {
			t.Fatalf("fraud rate 1 produced a clean transaction: %+v", tx)
		}
	}
}

func TestGenerator_Burst(t *testing.T) {
	g := New(0, nil, 3)
	burst := g.Burst(8)
	if len(burst) != 8 {
		t.Fatalf("burst of %d", len(burst))
	}
	for _, tx := range burst {
		if tx.AccountID != burst[0].AccountID {
			t.Fatal("burst spans accounts")
		}
		if tx.Timestamp.Sub(burst[0].Timestamp) >= time.Second {
			t.Fatal("burst spans more than a second")
		}
	}
}

type collector struct {
	mu  sync.Mutex
	got [][]byte
}

func (c *collector) Publish(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, payload)
	return nil
}

func TestProducer_Run(t *testing.T) {
	c := &collector{}
	p := NewProducer(New(0.1, []string{"ACCT666"}, 9), c, 10000, 10, 6, nil)
	sent, err := p.Run(context.Background(), 40)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 40 || len(c.got) != 40 {
		t.Fatalf("sent=%d collected=%d, want 40", sent, len(c.got))
	}
	for _, payload := range c.got {
		if _, err := transaction.Decode(payload); err != nil {
			t.Fatalf("produced undecodable payload %s: %v", payload, err)
		}
	}
}

func TestProducer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProducer(New(0, nil, 1), &collector{}, 1, 0, 0, nil)
	if _, err := p.Run(ctx, 0); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
}
