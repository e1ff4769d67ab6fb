// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "math"

// ─── Pool Identity ──────────────────────────────────────────────────────────

// Pool names the five gamified resource pools.
// Shield is derived from escrow carry and never receives transactions.
const (
	PoolHealth  = "health"
	PoolMana    = "mana"
	PoolStamina = "stamina"
	PoolEssence = "essence"
	PoolShield  = "shield"
)

// SourcePools are the three pools that can overflow into escrow.
var SourcePools = []string{PoolHealth, PoolMana, PoolStamina}

// ─── Trend Classification ───────────────────────────────────────────────────

const (
	TrendOverspending  = "overspending"
	TrendUnderspending = "underspending"
	TrendOnTarget      = "on target"
	TrendStable        = "stable"
)

// ─── Accounting Constants ───────────────────────────────────────────────────

const (
	// DaysPerMonth is the mean Gregorian month length used to convert
	// monthly cashflow figures into daily rates.
	DaysPerMonth = 30.44

	// DayMs is one calendar day in milliseconds.
	DayMs = int64(86_400_000)
)

// ─── Quad ───────────────────────────────────────────────────────────────────

// Quad is a per-pool value map over the four transactable pools.
// It is used for allocation weights, spend/credit splits, and aggregates.
type Quad struct {
	Health  float64 `json:"health"`
	Mana    float64 `json:"mana"`
	Stamina float64 `json:"stamina"`
	Essence float64 `json:"essence"`
}

// Get returns the value for a pool name. Unknown names return 0.
func (q Quad) Get(pool string) float64 {
	switch pool {
	case PoolHealth:
		return q.Health
	case PoolMana:
		return q.Mana
	case PoolStamina:
		return q.Stamina
	case PoolEssence:
		return q.Essence
	}
	return 0
}

// Set assigns the value for a pool name. Unknown names are ignored.
func (q *Quad) Set(pool string, v float64) {
	switch pool {
	case PoolHealth:
		q.Health = v
	case PoolMana:
		q.Mana = v
	case PoolStamina:
		q.Stamina = v
	case PoolEssence:
		q.Essence = v
	}
}

// Add returns the element-wise sum of q and o.
func (q Quad) Add(o Quad) Quad {
	return Quad{
		Health:  q.Health + o.Health,
		Mana:    q.Mana + o.Mana,
		Stamina: q.Stamina + o.Stamina,
		Essence: q.Essence + o.Essence,
	}
}

// Sum returns the total across all four pools.
func (q Quad) Sum() float64 {
	return q.Health + q.Mana + q.Stamina + q.Essence
}

// ─── HMS ────────────────────────────────────────────────────────────────────

// HMS is a three-way split over Health/Mana/Stamina, used as the
// redistribution vector when the Essence baseline is disabled.
type HMS struct {
	H float64 `json:"h"`
	M float64 `json:"m"`
	S float64 `json:"s"`
}

// ─── Safe Numerics ──────────────────────────────────────────────────────────

// SafeNum coerces v to a finite float64, substituting def for anything
// that does not parse as a finite number. Documents come from a schemaless
// store, so numeric fields may arrive as float64, int, nil, or garbage.
func SafeNum(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return def
		}
		return n
	case float32:
		return SafeNum(float64(n), def)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// SafeFinite replaces a non-finite float with def.
func SafeFinite(n, def float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return def
	}
	return n
}
