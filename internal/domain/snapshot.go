package domain

// ─── Gateway Snapshot ───────────────────────────────────────────────────────
// The persisted output of a recompute. Field names and nesting are a wire
// contract with the dashboard UI and must not change.

// CoreFlows holds the daily rates derived from the monthly config.
type CoreFlows struct {
	DailyIncome  float64 `json:"dailyIncome"`
	DailyExpense float64 `json:"dailyExpense"`
	NetDaily     float64 `json:"netDaily"`
}

// PoolState is one pool's slice of the snapshot.
// Debt is always written, even at zero: the snapshot is merge-written,
// so an omitted key would leave a stale repaid debt in the stored doc.
type PoolState struct {
	Max          float64 `json:"max"`
	Current      float64 `json:"current"`
	RegenDaily   float64 `json:"regenDaily"`
	SpentToDate  float64 `json:"spentToDate"`
	CreditToDate float64 `json:"creditToDate"`
	TruthTotal   float64 `json:"truthTotal"`
	BankedDays   int64   `json:"bankedDays"`
	Trend        string  `json:"trend"`
	Debt         float64 `json:"debt"`
}

// PoolSet names the five pool slots of the snapshot.
type PoolSet struct {
	Health  PoolState `json:"health"`
	Mana    PoolState `json:"mana"`
	Stamina PoolState `json:"stamina"`
	Essence PoolState `json:"essence"`
	Shield  PoolState `json:"shield"`
}

// EssenceUI carries the advisory soft-cap display values. The soft cap is
// never enforced as a clamp on Essence's current value.
type EssenceUI struct {
	SoftCapMode string  `json:"softCapMode"`
	SoftCap     float64 `json:"softCap"`
	EscrowToday float64 `json:"escrowToday"`
}

// EscrowCarry is overflow banked above cap+buffer, tracked per source pool.
// Each source is clamped to ≥ 0; Total is always the sum of the three.
type EscrowCarry struct {
	Total    float64            `json:"total"`
	BySource map[string]float64 `json:"bySource"`
}

// EscrowState is the cross-invocation escrow bookkeeping.
type EscrowState struct {
	Carry         EscrowCarry        `json:"carry"`
	BySourceToday map[string]float64 `json:"bySourceToday"`
}

// DebtState surfaces Health's negative truth as a positive magnitude.
type DebtState struct {
	Health float64 `json:"health"`
	AsOf   int64   `json:"asOf"`
}

// SnapshotMeta is the only state threaded from one recompute to the next.
type SnapshotMeta struct {
	SeededAtMs          int64       `json:"seededAtMs"`
	SeedAnchorMs        int64       `json:"seedAnchorMs"`
	EssenceSeedGrant    float64     `json:"essenceSeedGrant"`
	LastCrystallisedDay string      `json:"lastCrystallisedDay"`
	Escrow              EscrowState `json:"escrow"`
	Debts               DebtState   `json:"debts"`
}

// GatewaySnapshot is the full recompute output, merge-written to the
// player's state document.
type GatewaySnapshot struct {
	Core      CoreFlows    `json:"core"`
	Pools     PoolSet      `json:"pools"`
	EssenceUI EssenceUI    `json:"essenceUI"`
	Meta      SnapshotMeta `json:"meta"`
}

// Pool returns a pointer to the named pool slot, or nil for unknown names.
func (s *GatewaySnapshot) Pool(name string) *PoolState {
	switch name {
	case PoolHealth:
		return &s.Pools.Health
	case PoolMana:
		return &s.Pools.Mana
	case PoolStamina:
		return &s.Pools.Stamina
	case PoolEssence:
		return &s.Pools.Essence
	case PoolShield:
		return &s.Pools.Shield
	}
	return nil
}

// NewEscrowState returns a zeroed escrow state with all source keys
// present, so JSON output is stable.
func NewEscrowState() EscrowState {
	return EscrowState{
		Carry: EscrowCarry{
			BySource: map[string]float64{PoolHealth: 0, PoolMana: 0, PoolStamina: 0},
		},
		BySourceToday: map[string]float64{PoolHealth: 0, PoolMana: 0, PoolStamina: 0},
	}
}
