package vitals

import (
	"math"
	"sort"

	"github.com/vitalgate/vitalgate/internal/domain"
)

// ─── Transaction Aggregation ────────────────────────────────────────────────

// Bucket holds per-pool spend and credit totals. Spends are stored as
// positive magnitudes; the truth formula subtracts them.
type Bucket struct {
	Spends  domain.Quad
	Credits domain.Quad
}

// Aggregates is the output of one scan over a player's transaction
// collection.
type Aggregates struct {
	// All covers confirmed activity since the window start.
	All Bucket
	// Last7 mirrors All for the trailing seven days (never reaching
	// before the window start).
	Last7 Bucket
	// Pending is the signed preview of unconfirmed activity, used for
	// UI ghosting only. Credits add, debits subtract.
	Pending domain.Quad
}

// Aggregate performs the single classification pass over the resolved
// transaction collection. Transactions are processed in chronological
// order (ties broken by id) so repeated scans are deterministic. Core
// monthly flows and zero amounts are skipped; pending entries past
// their ghost expiry count as confirmed.
func Aggregate(txs []domain.Transaction, cfg domain.CashflowConfig, windowStartMs, nowMs int64) Aggregates {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].OccurredAtMs != ordered[j].OccurredAtMs {
			return ordered[i].OccurredAtMs < ordered[j].OccurredAtMs
		}
		return ordered[i].ID < ordered[j].ID
	})

	sevenStartMs := nowMs - 7*domain.DayMs
	if sevenStartMs < windowStartMs {
		sevenStartMs = windowStartMs
	}

	var agg Aggregates
	for _, t := range ordered {
		amount := domain.SafeFinite(t.Amount, 0)
		if amount == 0 || t.IsCore() {
			continue
		}

		intent := t.IntentPool()
		mode := EffectiveCreditMode(cfg, t)

		if !t.ConfirmedAt(nowMs) {
			// Pending preview: signed, uncommitted, window-independent.
			if amount > 0 {
				agg.Pending = agg.Pending.Add(RouteCredit(amount, mode, intent))
			} else {
				split := Allocate(-amount, intent, Unlimited())
				agg.Pending.Health -= split.Health
				agg.Pending.Mana -= split.Mana
				agg.Pending.Stamina -= split.Stamina
				agg.Pending.Essence -= split.Essence
			}
			continue
		}

		if t.OccurredAtMs < windowStartMs {
			continue
		}
		recent := t.OccurredAtMs >= sevenStartMs

		if amount > 0 {
			credit := RouteCredit(amount, mode, intent)
			agg.All.Credits = agg.All.Credits.Add(credit)
			if recent {
				agg.Last7.Credits = agg.Last7.Credits.Add(credit)
			}
			continue
		}

		// Confirmed debit: the stored applied allocation is the
		// authoritative historical split when present; otherwise the
		// split is recomputed live with unlimited availability.
		var split domain.Quad
		if t.AppliedAllocation != nil {
			split = sanitizeQuad(*t.AppliedAllocation)
		} else {
			split = Allocate(-amount, intent, Unlimited())
		}
		agg.All.Spends = agg.All.Spends.Add(split)
		if recent {
			agg.Last7.Spends = agg.Last7.Spends.Add(split)
		}
	}

	return agg
}

// AvailabilityFrom derives the live pool availability used when the lock
// sweep stamps an authoritative allocation onto an expiring transaction.
func AvailabilityFrom(snap domain.GatewaySnapshot) domain.Quad {
	return domain.Quad{
		Health:  math.Max(0, snap.Pools.Health.Current),
		Mana:    math.Max(0, snap.Pools.Mana.Current),
		Stamina: math.Max(0, snap.Pools.Stamina.Current),
	}
}

// LockAllocation computes the authoritative split for a debit being
// locked by the expiry sweep, drawing on the pools' live current values
// as availability.
func LockAllocation(spend float64, intent string, snap domain.GatewaySnapshot) domain.Quad {
	return Allocate(spend, intent, AvailabilityFrom(snap))
}
