package vitals

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/vitalgate/vitalgate/internal/domain"
	"github.com/vitalgate/vitalgate/internal/infra/observability"
)

// ─── Gateway Recompute Engine ───────────────────────────────────────────────

// Engine derives a player's vitals snapshot from their transactions and
// cashflow config. One engine instance serves every call site; the
// document store and transaction source are injected.
type Engine struct {
	store  domain.DocumentStore
	source domain.TransactionSource
	clock  domain.Clock
}

// New creates a recompute engine.
func New(store domain.DocumentStore, source domain.TransactionSource) *Engine {
	return &Engine{store: store, source: source, clock: domain.SystemClock{}}
}

// SetClock overrides the engine clock (tests).
func (e *Engine) SetClock(c domain.Clock) { e.clock = c }

// Result is one recompute's output. Only Snapshot is persisted; the
// pending preview is returned for UI ghosting and never written.
type Result struct {
	Snapshot     domain.GatewaySnapshot
	Pending      domain.Quad
	Source       Source
	Crystallized float64
	Bootstrap    bool
}

// Recompute runs the full derivation for a player and merge-writes the
// resulting snapshot. An absent config document produces a zeroed
// bootstrap snapshot rather than an error; a store failure aborts the
// recompute with no partial write. Metrics are recorded here so every
// caller (HTTP, sweep, poll loop, CLI) is observed.
func (e *Engine) Recompute(ctx context.Context, playerID string) (*Result, error) {
	start := time.Now()
	res, err := e.recompute(ctx, playerID)
	switch {
	case err != nil:
		observability.ObserveRecompute(start, "error")
	case res.Bootstrap:
		observability.ObserveRecompute(start, "bootstrap")
	default:
		observability.ObserveRecompute(start, "ok")
		observability.RecordEscrow(res.Snapshot.Meta.Escrow.Carry.BySource, res.Crystallized)
	}
	return res, err
}

func (e *Engine) recompute(ctx context.Context, playerID string) (*Result, error) {
	src, err := ResolveSource(ctx, e.store, playerID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	nowMs := now.UnixMilli()

	cfgDoc, err := e.store.Get(ctx, src.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfgDoc == nil {
		snap := bootstrapSnapshot(nowMs)
		if err := e.store.Set(ctx, src.SnapshotPath, snap, true); err != nil {
			return nil, fmt.Errorf("write bootstrap snapshot: %w", err)
		}
		return &Result{Snapshot: snap, Source: src, Bootstrap: true}, nil
	}
	cfg := domain.ParseCashflowConfig(cfgDoc)

	priorDoc, err := e.store.Get(ctx, src.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("read prior snapshot: %w", err)
	}
	prior := SnapshotFromDoc(priorDoc)

	txs, err := e.source.Query(ctx, src.TxBranchPath)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	windowStartMs := WindowStart(cfg, now)
	agg := Aggregate(txs, cfg, windowStartMs, nowMs)

	snap, crystallized := derive(cfg, agg, prior, now, windowStartMs)

	if err := e.store.Set(ctx, src.SnapshotPath, snap, true); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	return &Result{
		Snapshot:     snap,
		Pending:      agg.Pending,
		Source:       src,
		Crystallized: crystallized,
	}, nil
}

// WindowStart resolves the accounting window start: the pay-cycle anchor
// when set, otherwise the first instant of the current calendar month in
// local time.
func WindowStart(cfg domain.CashflowConfig, now time.Time) int64 {
	if cfg.PayCycleAnchorMs > 0 {
		return cfg.PayCycleAnchorMs
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.UnixMilli()
}

// derive is the pure orchestration step: config + aggregates + prior
// meta in, snapshot out. Split from Recompute so the whole state machine
// is testable without a store.
func derive(cfg domain.CashflowConfig, agg Aggregates, prior domain.GatewaySnapshot, now time.Time, windowStartMs int64) (domain.GatewaySnapshot, float64) {
	nowMs := now.UnixMilli()

	// Step 1: core daily rates.
	core := domain.CoreFlows{
		DailyIncome:  domain.SafeFinite(cfg.InflowMonthly/domain.DaysPerMonth, 0),
		DailyExpense: domain.SafeFinite(cfg.OutflowMonthly/domain.DaysPerMonth, 0),
	}
	core.NetDaily = core.DailyIncome - core.DailyExpense

	// Step 2: base regen per pool, with optional Essence redistribution.
	weights := NormalizeWeights(cfg.PoolAllocationWeights)
	regen := domain.Quad{
		Health:  core.NetDaily * weights.Health,
		Mana:    core.NetDaily * weights.Mana,
		Stamina: core.NetDaily * weights.Stamina,
		Essence: core.NetDaily * weights.Essence,
	}
	if !cfg.EssenceBaselineEnabled {
		rv := cfg.RedistributionVector
		regen.Health += regen.Essence * rv.H
		regen.Mana += regen.Essence * rv.M
		regen.Stamina += regen.Essence * rv.S
		regen.Essence = 0
	}

	// Step 3: static caps. Essence has no cap. Caps are floored at zero
	// so the [0, cap] clamp stays well-formed when netDaily is negative.
	caps := domain.Quad{
		Health:  math.Max(0, weights.Health*core.NetDaily*domain.DaysPerMonth),
		Mana:    math.Max(0, weights.Mana*core.NetDaily*domain.DaysPerMonth),
		Stamina: math.Max(0, weights.Stamina*core.NetDaily*domain.DaysPerMonth),
	}

	// Step 4: window age.
	daysSince := math.Max(0, float64(nowMs-windowStartMs)/float64(domain.DayMs))

	// Step 5: one-time Essence seeding per explicit anchor value.
	meta := prior.Meta
	anchor := cfg.PayCycleAnchorMs
	seeded := meta.SeededAtMs > 0
	anchorChanged := seeded && meta.SeedAnchorMs != anchor
	if !seeded || anchorChanged {
		grant := math.Max(0, (caps.Mana+caps.Stamina)-(agg.All.Spends.Mana+agg.All.Spends.Stamina))
		meta.SeededAtMs = nowMs
		meta.SeedAnchorMs = anchor
		meta.EssenceSeedGrant = grant
	}

	// Escrow: reset outright on anchor change (the accounting window
	// moved), otherwise run the day-rollover transition.
	esc := ensureEscrow(meta.Escrow)
	var crystallized float64
	bankedDelta := map[string]int64{}
	if anchorChanged {
		esc = domain.NewEscrowState()
	} else {
		regenBySource := map[string]float64{
			domain.PoolHealth:  regen.Health,
			domain.PoolMana:    regen.Mana,
			domain.PoolStamina: regen.Stamina,
		}
		newCarry, cryst, delta, rolled := RollDay(meta.LastCrystallisedDay, DayKey(now), esc.Carry, regenBySource)
		if rolled {
			esc.Carry = newCarry
			esc.BySourceToday = map[string]float64{
				domain.PoolHealth: 0, domain.PoolMana: 0, domain.PoolStamina: 0,
			}
			crystallized = cryst
			bankedDelta = delta
		}
	}

	// Step 6/7: seeds and truth totals. Health is left signed; Mana and
	// Stamina floor at zero. Essence's truth waits for the crystallized
	// extra below.
	truthHealth := caps.Health + regen.Health*daysSince - agg.All.Spends.Health + agg.All.Credits.Health
	truthMana := math.Max(0, regen.Mana*daysSince-agg.All.Spends.Mana+agg.All.Credits.Mana)
	truthStamina := math.Max(0, regen.Stamina*daysSince-agg.All.Spends.Stamina+agg.All.Credits.Stamina)

	// Escrow accrual against today's overflow levels.
	overflow := map[string]float64{
		domain.PoolHealth:  Overflow(truthHealth, caps.Health, regen.Health, cfg.OverflowBufferDays),
		domain.PoolMana:    Overflow(truthMana, caps.Mana, regen.Mana, cfg.OverflowBufferDays),
		domain.PoolStamina: Overflow(truthStamina, caps.Stamina, regen.Stamina, cfg.OverflowBufferDays),
	}
	esc.Carry, esc.BySourceToday = AccrueToday(esc.Carry, esc.BySourceToday, overflow)
	meta.Escrow = esc
	meta.LastCrystallisedDay = DayKey(now)

	truthEssence := math.Max(0, meta.EssenceSeedGrant+regen.Essence*daysSince-agg.All.Spends.Essence+agg.All.Credits.Essence+crystallized)

	// Step 8: clamped currents.
	currentHealth := clamp(truthHealth, 0, caps.Health)
	currentMana := clamp(truthMana, 0, caps.Mana)
	currentStamina := clamp(truthStamina, 0, caps.Stamina)

	// Health debt.
	var debt float64
	if truthHealth < 0 {
		debt = -truthHealth
	}
	meta.Debts = domain.DebtState{Health: debt, AsOf: nowMs}

	// Banked days thread from the prior snapshot, reset with the anchor.
	banked := func(pool string, prior int64) int64 {
		if anchorChanged {
			prior = 0
		}
		return prior + bankedDelta[pool]
	}

	// Step 11: advisory Essence soft cap.
	softCap := caps.Mana + caps.Stamina
	if cfg.EssenceSoftCapMode == domain.SoftCapHMS {
		softCap += caps.Health
	}

	// Step 10: Shield pool derived from escrow carry.
	regenHMS := regen.Health + regen.Mana + regen.Stamina
	var shieldBanked int64
	if regenHMS > 0 {
		shieldBanked = int64(math.Floor(esc.Carry.Total / regenHMS))
	}
	shield := domain.PoolState{
		Max:        softCap,
		Current:    math.Min(softCap, esc.Carry.Total),
		TruthTotal: esc.Carry.Total,
		BankedDays: shieldBanked,
		Trend:      domain.TrendStable,
	}

	snap := domain.GatewaySnapshot{
		Core: core,
		Pools: domain.PoolSet{
			Health: domain.PoolState{
				Max:          caps.Health,
				Current:      currentHealth,
				RegenDaily:   regen.Health,
				SpentToDate:  agg.All.Spends.Health,
				CreditToDate: agg.All.Credits.Health,
				TruthTotal:   truthHealth,
				BankedDays:   banked(domain.PoolHealth, prior.Pools.Health.BankedDays),
				Trend:        classifyTrend(agg.Last7.Spends.Health, regen.Health),
				Debt:         debt,
			},
			Mana: domain.PoolState{
				Max:          caps.Mana,
				Current:      currentMana,
				RegenDaily:   regen.Mana,
				SpentToDate:  agg.All.Spends.Mana,
				CreditToDate: agg.All.Credits.Mana,
				TruthTotal:   truthMana,
				BankedDays:   banked(domain.PoolMana, prior.Pools.Mana.BankedDays),
				Trend:        classifyTrend(agg.Last7.Spends.Mana, regen.Mana),
			},
			Stamina: domain.PoolState{
				Max:          caps.Stamina,
				Current:      currentStamina,
				RegenDaily:   regen.Stamina,
				SpentToDate:  agg.All.Spends.Stamina,
				CreditToDate: agg.All.Credits.Stamina,
				TruthTotal:   truthStamina,
				BankedDays:   banked(domain.PoolStamina, prior.Pools.Stamina.BankedDays),
				Trend:        classifyTrend(agg.Last7.Spends.Stamina, regen.Stamina),
			},
			Essence: domain.PoolState{
				Max:          0,
				Current:      truthEssence,
				RegenDaily:   regen.Essence,
				SpentToDate:  agg.All.Spends.Essence,
				CreditToDate: agg.All.Credits.Essence + crystallized,
				TruthTotal:   truthEssence,
				BankedDays:   banked(domain.PoolEssence, prior.Pools.Essence.BankedDays),
				Trend:        domain.TrendStable,
			},
			Shield: shield,
		},
		EssenceUI: domain.EssenceUI{
			SoftCapMode: cfg.EssenceSoftCapMode,
			SoftCap:     softCap,
			EscrowToday: sumToday(esc.BySourceToday),
		},
		Meta: meta,
	}

	return snap, crystallized
}

// classifyTrend compares seven-day confirmed spend against the regen
// baseline: above 115% is overspending, below 80% is underspending.
// Pools with no positive regen are simply stable.
func classifyTrend(spend7 float64, regenDaily float64) string {
	if regenDaily <= 0 {
		return domain.TrendStable
	}
	baseline := 7 * regenDaily
	switch {
	case spend7 > 1.15*baseline:
		return domain.TrendOverspending
	case spend7 < 0.8*baseline:
		return domain.TrendUnderspending
	default:
		return domain.TrendOnTarget
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sumToday(today map[string]float64) float64 {
	var total float64
	for _, src := range domain.SourcePools {
		total += today[src]
	}
	return total
}

// ensureEscrow fills in missing maps on escrow state read back from a
// document that predates one of the fields.
func ensureEscrow(esc domain.EscrowState) domain.EscrowState {
	if esc.Carry.BySource == nil {
		esc.Carry.BySource = map[string]float64{
			domain.PoolHealth: 0, domain.PoolMana: 0, domain.PoolStamina: 0,
		}
	}
	if esc.BySourceToday == nil {
		esc.BySourceToday = map[string]float64{
			domain.PoolHealth: 0, domain.PoolMana: 0, domain.PoolStamina: 0,
		}
	}
	return esc
}

// bootstrapSnapshot is the minimal zeroed snapshot emitted when the
// player has no cashflow config yet.
func bootstrapSnapshot(nowMs int64) domain.GatewaySnapshot {
	zero := domain.PoolState{Trend: domain.TrendStable}
	return domain.GatewaySnapshot{
		Pools: domain.PoolSet{
			Health: zero, Mana: zero, Stamina: zero, Essence: zero, Shield: zero,
		},
		EssenceUI: domain.EssenceUI{SoftCapMode: domain.SoftCapHMS},
		Meta: domain.SnapshotMeta{
			Escrow: domain.NewEscrowState(),
			Debts:  domain.DebtState{AsOf: nowMs},
		},
	}
}

// SnapshotFromDoc decodes a stored snapshot document, tolerating absence
// and unknown fields. A nil document yields a zeroed snapshot with
// escrow maps initialized.
func SnapshotFromDoc(doc domain.Document) domain.GatewaySnapshot {
	var snap domain.GatewaySnapshot
	if doc != nil {
		if raw, err := json.Marshal(doc); err == nil {
			_ = json.Unmarshal(raw, &snap)
		}
	}
	snap.Meta.Escrow = ensureEscrow(snap.Meta.Escrow)
	return snap
}
