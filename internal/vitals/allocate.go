package vitals

import (
	"math"

	"github.com/vitalgate/vitalgate/internal/domain"
)

// ─── Spend Allocation ───────────────────────────────────────────────────────

// Unlimited returns an availability map with no effective ceiling on the
// non-essence pools. Used when aggregating historical debits, where
// availability limiting does not apply.
func Unlimited() domain.Quad {
	inf := math.Inf(1)
	return domain.Quad{Health: inf, Mana: inf, Stamina: inf}
}

// Allocate splits a spend across pools. The intent selects the primary
// pool ("mana" maps to Mana, anything else to Stamina); the primary is
// drained up to its available balance and the remainder overspills into
// Health, uncapped. Essence is never touched. Zero or negative spend
// yields an all-zero split. Pure function, reused for both pending
// previews and confirmed-spend aggregation.
func Allocate(spend float64, intent string, available domain.Quad) domain.Quad {
	var out domain.Quad
	spend = domain.SafeFinite(spend, 0)
	if spend <= 0 {
		return out
	}

	primary := domain.PoolStamina
	if intent == domain.PoolMana {
		primary = domain.PoolMana
	}

	avail := available.Get(primary)
	if !math.IsInf(avail, 1) {
		avail = math.Max(0, domain.SafeFinite(avail, 0))
	}

	fromPrimary := math.Min(spend, avail)
	out.Set(primary, fromPrimary)
	out.Health += spend - fromPrimary
	return out
}

// ─── Credit Routing ─────────────────────────────────────────────────────────

// EffectiveCreditMode resolves the routing mode for a transaction: a
// per-transaction override always takes precedence over the config-level
// mode; unrecognized values fall back to the config.
func EffectiveCreditMode(cfg domain.CashflowConfig, t domain.Transaction) string {
	switch t.CreditModeOverride {
	case domain.CreditModeEssence, domain.CreditModeAllocate, domain.CreditModeHealth:
		return t.CreditModeOverride
	}
	return cfg.CreditMode
}

// RouteCredit decides which pool(s) receive a credit. "essence" and
// "health" route the whole amount to that pool; "allocate" runs the
// amount through the spend allocator with unlimited availability, so it
// lands on the intent pool and tops up in-progress aggregation there.
// Zero or negative amounts yield an all-zero result.
func RouteCredit(amount float64, mode, intent string) domain.Quad {
	var out domain.Quad
	amount = domain.SafeFinite(amount, 0)
	if amount <= 0 {
		return out
	}

	switch mode {
	case domain.CreditModeHealth:
		out.Health = amount
	case domain.CreditModeAllocate:
		out = Allocate(amount, intent, Unlimited())
	default:
		out.Essence = amount
	}
	return out
}

// sanitizeQuad clamps a stored allocation to finite, non-negative values.
func sanitizeQuad(q domain.Quad) domain.Quad {
	clamp := func(v float64) float64 {
		v = domain.SafeFinite(v, 0)
		if v < 0 {
			return 0
		}
		return v
	}
	return domain.Quad{
		Health:  clamp(q.Health),
		Mana:    clamp(q.Mana),
		Stamina: clamp(q.Stamina),
		Essence: clamp(q.Essence),
	}
}
