// Package vitals implements the gateway recompute engine: allocation
// policy, spend/credit routing, transaction aggregation, escrow
// crystallization, and snapshot orchestration.
//
// The engine is the single implementation consumed by every call site
// (HTTP API, CLI, sweep). It holds no package-level state: the resolved
// source paths travel in an explicit per-call Source value, and all
// cross-invocation state lives in the snapshot's meta document.
package vitals

import (
	"github.com/vitalgate/vitalgate/internal/domain"
)

// NormalizeWeights scales the four pool-allocation weights so they sum
// to 1. Non-finite entries are replaced by their documented default
// before normalizing; negative entries are treated as 0. A degenerate
// all-zero input yields the default split. Never fails.
func NormalizeWeights(raw domain.Quad) domain.Quad {
	w := domain.Quad{
		Health:  domain.SafeFinite(raw.Health, domain.DefaultWeights.Health),
		Mana:    domain.SafeFinite(raw.Mana, domain.DefaultWeights.Mana),
		Stamina: domain.SafeFinite(raw.Stamina, domain.DefaultWeights.Stamina),
		Essence: domain.SafeFinite(raw.Essence, domain.DefaultWeights.Essence),
	}
	if w.Health < 0 {
		w.Health = 0
	}
	if w.Mana < 0 {
		w.Mana = 0
	}
	if w.Stamina < 0 {
		w.Stamina = 0
	}
	if w.Essence < 0 {
		w.Essence = 0
	}

	total := w.Sum()
	if total <= 0 {
		return domain.DefaultWeights
	}
	return domain.Quad{
		Health:  w.Health / total,
		Mana:    w.Mana / total,
		Stamina: w.Stamina / total,
		Essence: w.Essence / total,
	}
}
