// Package generator produces synthetic transactions for load and demo runs.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transport"
)

var (
	currencies = []string{"USD", "EUR", "GBP"}
	categories = []string{"RETAIL", "GROCERY", "ONLINE", "TRAVEL", "FUEL"}
	locations  = []string{"NEW_YORK", "LONDON", "PARIS", "TOKYO", "SINGAPORE"}
)

// Generator builds random transactions. A fraction of them (FraudRate) is
// made suspicious: either a blacklisted account or an amount above the large
// amount threshold. It is not safe for concurrent use.
type Generator struct {
	FraudRate          float64
	SuspiciousAccounts []string
	rng                *rand.Rand
	now                func() time.Time
}

// New creates a generator seeded with seed.
func New(fraudRate float64, suspicious []string, seed uint64) *Generator {
	return &Generator{
		FraudRate:          fraudRate,
		SuspiciousAccounts: suspicious,
		rng:                rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:                time.Now,
	}
}

// Next returns one transaction.
func (g *Generator) Next() transaction.Transaction {
	tx := transaction.Transaction{
		ID:               uuid.NewString(),
		AccountID:        fmt.Sprintf("ACCT%03d", 100+g.rng.IntN(900)),
		Amount:           decimal.NewNullDecimal(g.amount(1, 5000)),
		Currency:         pick(g.rng, currencies),
		Timestamp:        g.now().UTC(),
		MerchantID:       fmt.Sprintf("MERCHANT_%03d", 1+g.rng.IntN(100)),
		MerchantCategory: pick(g.rng, categories),
		Location:         pick(g.rng, locations),
		Type:             pick(g.rng, transaction.Types),
	}
	if g.rng.Float64() < g.FraudRate {
		if len(g.SuspiciousAccounts) > 0 && g.rng.IntN(2) == 0 {
			tx.AccountID = pick(g.rng, g.SuspiciousAccounts)
		} else {
			tx.Amount = decimal.NewNullDecimal(g.amount(10001, 100000))
		}
	}
	return tx
}

// Burst returns n transactions for one account inside the same second, enough
// to trip the rapid-fire rule when n exceeds its limit.
func (g *Generator) Burst(n int) []transaction.Transaction {
	account := fmt.Sprintf("ACCT_RAPID_%03d", g.rng.IntN(1000))
	ts := g.now().UTC()
	out := make([]transaction.Transaction, n)
	for i := range out {
		tx := g.Next()
		tx.AccountID = account
		tx.Amount = decimal.NewNullDecimal(g.amount(1, 100))
		tx.Timestamp = ts.Add(time.Duration(i) * time.Millisecond)
		out[i] = tx
	}
	return out
}

// amount returns a random value in [lo, hi] with two decimal places.
func (g *Generator) amount(lo, hi int64) decimal.Decimal {
	cents := lo*100 + g.rng.Int64N((hi-lo)*100+1)
	return decimal.New(cents, -2)
}

func pick[T any](rng *rand.Rand, from []T) T {
	return from[rng.IntN(len(from))]
}

// Producer publishes generated transactions at a steady rate, inserting a
// rapid-fire burst every BurstEvery transactions.
type Producer struct {
	gen        *Generator
	publisher  transport.Publisher
	limiter    *rate.Limiter
	burstEvery int
	burstSize  int
	logger     *slog.Logger
}

func NewProducer(gen *Generator, publisher transport.Publisher, perSecond float64, burstEvery, burstSize int, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	burst := max(1, int(perSecond))
	return &Producer{
		gen:        gen,
		publisher:  publisher,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		burstEvery: burstEvery,
		burstSize:  burstSize,
		logger:     logger,
	}
}

// Run publishes until ctx ends or limit transactions were sent (limit <= 0
// means no limit). It returns how many were published.
func (p *Producer) Run(ctx context.Context, limit int) (int, error) {
	sent := 0
	for limit <= 0 || sent < limit {
		batch := []transaction.Transaction{p.gen.Next()}
		if p.burstEvery > 0 && sent > 0 && sent%p.burstEvery == 0 {
			batch = p.gen.Burst(p.burstSize)
		}
		for _, tx := range batch {
			if limit > 0 && sent >= limit {
				break
			}
			if err := p.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return sent, nil
				}
				return sent, err
			}
			payload, err := transaction.Encode(tx)
			if err != nil {
				return sent, fmt.Errorf("encode %s: %w", tx.ID, err)
			}
			if err := p.publisher.Publish(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return sent, nil
				}
				return sent, fmt.Errorf("publish %s: %w", tx.ID, err)
			}
			sent++
			if sent%1000 == 0 {
				p.logger.Info("producer progress", "sent", sent)
			}
		}
	}
	return sent, nil
}
