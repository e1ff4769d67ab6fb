package vitals

import (
	"math"
	"time"

	"github.com/vitalgate/vitalgate/internal/domain"
)

// ─── Escrow Crystallization ─────────────────────────────────────────────────
// Escrow banks cross-day overflow above cap+buffer. Within a day the
// carry moves by signed deltas, so a same-day spend can shrink a still
// accruing overflow. Once the local day closes, its carry is
// irrevocably crystallized into Essence and never re-opened.
//
// The day-boundary transition is an explicit two-state machine
// (accruing, justRolledOver) expressed as the pure function RollDay so
// it is testable without any I/O.

// DayKey formats a time as its local calendar date key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// RollDay is the pure day-rollover transition. Given the previously
// stored day key and today's, it decides whether a rollover happened.
// On rollover the entire prior carry crystallizes into an Essence
// credit, carry resets to zero, and each source banks
// floor(priorCarry/regenDaily) additional days. With no rollover the
// carry passes through untouched.
func RollDay(priorDayKey, todayKey string, carry domain.EscrowCarry, regen map[string]float64) (newCarry domain.EscrowCarry, crystallized float64, bankedDelta map[string]int64, rolled bool) {
	bankedDelta = map[string]int64{}
	if priorDayKey == "" || priorDayKey == todayKey {
		return carry, 0, bankedDelta, false
	}

	crystallized = carry.Total
	for _, src := range domain.SourcePools {
		if r := regen[src]; r > 0 {
			bankedDelta[src] = int64(math.Floor(carry.BySource[src] / r))
		}
	}

	newCarry = domain.EscrowCarry{
		BySource: map[string]float64{
			domain.PoolHealth:  0,
			domain.PoolMana:    0,
			domain.PoolStamina: 0,
		},
	}
	return newCarry, crystallized, bankedDelta, true
}

// Overflow computes a source pool's escrow-eligible overflow: everything
// above cap plus the configured buffer of regen days, floored at zero.
func Overflow(truth, capacity, regenDaily, bufferDays float64) float64 {
	return math.Max(0, truth-(capacity+bufferDays*regenDaily))
}

// AccrueToday applies the signed delta between today's overflow level
// and the previously recorded level to each source's carry, clamping
// every source at zero. It returns the updated carry (with Total
// re-summed) and the new bySourceToday levels.
func AccrueToday(carry domain.EscrowCarry, prevToday, overflow map[string]float64) (domain.EscrowCarry, map[string]float64) {
	next := domain.EscrowCarry{BySource: map[string]float64{}}
	today := map[string]float64{}
	for _, src := range domain.SourcePools {
		delta := overflow[src] - prevToday[src]
		next.BySource[src] = math.Max(0, carry.BySource[src]+delta)
		today[src] = overflow[src]
		next.Total += next.BySource[src]
	}
	return next, today
}
