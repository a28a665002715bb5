// Package ledger tracks campaign budgets. The ledger is the single source
// of truth for spend: every billable event debits here, and a debit that
// would drive the remaining balance below zero is rejected whole.
//
// Amounts are stored as integer cents so the Redis scripts compare and
// mutate exact values. The public API speaks float64 currency units rounded
// to two decimals.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"
)

// ErrInsufficientBudget is returned when a debit would exceed the remaining
// balance. It is a normal business outcome, not a system failure: callers
// record the triggering event as non-billable and let the campaign complete.
var ErrInsufficientBudget = errors.New("insufficient budget")

// ErrUnknownCampaign is returned when the ledger holds no entry for the
// campaign.
var ErrUnknownCampaign = errors.New("campaign not present in ledger")

// Snapshot is a point-in-time view of one campaign's balances.
// Spent+Remaining == Total holds for every snapshot; Snapshot never
// under-reports Spent relative to completed debits.
type Snapshot struct {
	Total     float64 `json:"total"`
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
}

// Ledger exposes atomic budget operations per campaign.
type Ledger interface {
	// Init seeds the campaign's total if the ledger has no entry yet.
	// Existing balances survive restarts.
	Init(ctx context.Context, campaignID int, total float64) error
	// Debit atomically decrements the remaining balance iff it covers the
	// amount, returning the new remaining balance. Partial debits never
	// happen: on ErrInsufficientBudget the balance is untouched.
	Debit(ctx context.Context, campaignID int, amount float64) (float64, error)
	// Credit refunds a previously debited amount, clamped at zero spent.
	Credit(ctx context.Context, campaignID int, amount float64) (float64, error)
	// Fund raises the campaign's total by amount (external payment settled).
	Fund(ctx context.Context, campaignID int, amount float64) (Snapshot, error)
	// Snapshot returns the current balances.
	Snapshot(ctx context.Context, campaignID int) (Snapshot, error)
	// RemainingBatch returns remaining balances for many campaigns in one
	// round trip. Campaigns without a ledger entry are omitted.
	RemainingBatch(ctx context.Context, campaignIDs []int) (map[int]float64, error)
}

// debitScript performs the conditional decrement. KEYS[1] is the total key,
// KEYS[2] the spent key, ARGV[1] the amount in cents. Returns the new
// remaining cents, or -1 when the balance does not cover the amount.
var debitScript = redis.NewScript(`
local total = tonumber(redis.call('GET', KEYS[1]) or '-1')
if total < 0 then
	return -2
end
local spent = tonumber(redis.call('GET', KEYS[2]) or '0')
local amount = tonumber(ARGV[1])
if total - spent >= amount then
	spent = redis.call('INCRBY', KEYS[2], amount)
	return total - spent
end
return -1
`)

// creditScript refunds cents onto the balance, never driving spent negative.
// Returns the new remaining cents.
var creditScript = redis.NewScript(`
local total = tonumber(redis.call('GET', KEYS[1]) or '-1')
if total < 0 then
	return -2
end
local spent = tonumber(redis.call('GET', KEYS[2]) or '0')
local amount = tonumber(ARGV[1])
if amount > spent then
	amount = spent
end
spent = redis.call('DECRBY', KEYS[2], amount)
return total - spent
`)

// RedisLedger implements Ledger on Redis. All mutations run as single Lua
// scripts, so concurrent debits against one campaign serialize inside Redis
// and can never jointly overspend.
type RedisLedger struct {
	client redis.UniversalClient
}

// NewRedisLedger wraps the given client.
func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client}
}

var _ Ledger = (*RedisLedger)(nil)

func totalKey(campaignID int) string { return fmt.Sprintf("ledger:%d:total", campaignID) }
func spentKey(campaignID int) string { return fmt.Sprintf("ledger:%d:spent", campaignID) }

// toCents converts currency units to integer cents using round-half-up.
func toCents(amount float64) int64 {
	return int64(math.Floor(amount*100 + 0.5 + 1e-9))
}

// fromCents converts integer cents back to currency units.
func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func (l *RedisLedger) Init(ctx context.Context, campaignID int, total float64) error {
	return l.client.SetNX(ctx, totalKey(campaignID), toCents(total), 0).Err()
}

func (l *RedisLedger) Debit(ctx context.Context, campaignID int, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative debit amount %.2f", amount)
	}
	res, err := debitScript.Run(ctx, l.client,
		[]string{totalKey(campaignID), spentKey(campaignID)},
		toCents(amount)).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger debit: %w", err)
	}
	switch res {
	case -1:
		return 0, ErrInsufficientBudget
	case -2:
		return 0, ErrUnknownCampaign
	}
	return fromCents(res), nil
}

func (l *RedisLedger) Credit(ctx context.Context, campaignID int, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative credit amount %.2f", amount)
	}
	res, err := creditScript.Run(ctx, l.client,
		[]string{totalKey(campaignID), spentKey(campaignID)},
		toCents(amount)).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger credit: %w", err)
	}
	if res == -2 {
		return 0, ErrUnknownCampaign
	}
	return fromCents(res), nil
}

func (l *RedisLedger) Fund(ctx context.Context, campaignID int, amount float64) (Snapshot, error) {
	if amount < 0 {
		return Snapshot{}, fmt.Errorf("negative funding amount %.2f", amount)
	}
	if err := l.client.IncrBy(ctx, totalKey(campaignID), toCents(amount)).Err(); err != nil {
		return Snapshot{}, fmt.Errorf("ledger fund: %w", err)
	}
	return l.Snapshot(ctx, campaignID)
}

func (l *RedisLedger) Snapshot(ctx context.Context, campaignID int) (Snapshot, error) {
	vals, err := l.client.MGet(ctx, totalKey(campaignID), spentKey(campaignID)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("ledger snapshot: %w", err)
	}
	if vals[0] == nil {
		return Snapshot{}, ErrUnknownCampaign
	}
	total := parseCents(vals[0])
	spent := parseCents(vals[1])
	return Snapshot{
		Total:     fromCents(total),
		Spent:     fromCents(spent),
		Remaining: fromCents(total - spent),
	}, nil
}

func (l *RedisLedger) RemainingBatch(ctx context.Context, campaignIDs []int) (map[int]float64, error) {
	if len(campaignIDs) == 0 {
		return map[int]float64{}, nil
	}
	pipe := l.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(campaignIDs))
	for i, id := range campaignIDs {
		cmds[i] = pipe.MGet(ctx, totalKey(id), spentKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ledger batch: %w", err)
	}
	out := make(map[int]float64, len(campaignIDs))
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || vals[0] == nil {
			continue
		}
		out[campaignIDs[i]] = fromCents(parseCents(vals[0]) - parseCents(vals[1]))
	}
	return out, nil
}

func parseCents(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var cents int64
	_, _ = fmt.Sscanf(s, "%d", &cents)
	return cents
}
