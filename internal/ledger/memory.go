package ledger

import (
	"context"
	"sync"
)

type balance struct {
	total int64
	spent int64
}

// MemoryLedger is a mutex-guarded in-process Ledger. It backs unit tests
// and single-node deployments without Redis; the invariants match
// RedisLedger exactly.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[int]*balance
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[int]*balance)}
}

var _ Ledger = (*MemoryLedger)(nil)

func (l *MemoryLedger) Init(ctx context.Context, campaignID int, total float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[campaignID]; !ok {
		l.balances[campaignID] = &balance{total: toCents(total)}
	}
	return nil
}

func (l *MemoryLedger) Debit(ctx context.Context, campaignID int, amount float64) (float64, error) {
	cents := toCents(amount)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[campaignID]
	if !ok {
		return 0, ErrUnknownCampaign
	}
	if b.total-b.spent < cents {
		return 0, ErrInsufficientBudget
	}
	b.spent += cents
	return fromCents(b.total - b.spent), nil
}

func (l *MemoryLedger) Credit(ctx context.Context, campaignID int, amount float64) (float64, error) {
	cents := toCents(amount)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[campaignID]
	if !ok {
		return 0, ErrUnknownCampaign
	}
	if cents > b.spent {
		cents = b.spent
	}
	b.spent -= cents
	return fromCents(b.total - b.spent), nil
}

func (l *MemoryLedger) Fund(ctx context.Context, campaignID int, amount float64) (Snapshot, error) {
	cents := toCents(amount)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[campaignID]
	if !ok {
		b = &balance{}
		l.balances[campaignID] = b
	}
	b.total += cents
	return Snapshot{
		Total:     fromCents(b.total),
		Spent:     fromCents(b.spent),
		Remaining: fromCents(b.total - b.spent),
	}, nil
}

func (l *MemoryLedger) Snapshot(ctx context.Context, campaignID int) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[campaignID]
	if !ok {
		return Snapshot{}, ErrUnknownCampaign
	}
	return Snapshot{
		Total:     fromCents(b.total),
		Spent:     fromCents(b.spent),
		Remaining: fromCents(b.total - b.spent),
	}, nil
}

func (l *MemoryLedger) RemainingBatch(ctx context.Context, campaignIDs []int) (map[int]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int]float64, len(campaignIDs))
	for _, id := range campaignIDs {
		if b, ok := l.balances[id]; ok {
			out[id] = fromCents(b.total - b.spent)
		}
	}
	return out, nil
}
