package domain

// ─── Cashflow Configuration ─────────────────────────────────────────────────

// Cadence values describe how often core income arrives. The value is
// carried for the settings UI; the recompute math always works from
// monthly figures.
const (
	CadenceMonthly     = "monthly"
	CadenceFortnightly = "fortnightly"
	CadenceWeekly      = "weekly"
)

// Energy modes. Carried through for the dashboard, not bound into the
// recompute math.
const (
	EnergyContinuous = "continuous"
	EnergyFinite     = "finite"
)

// Essence soft-cap modes.
const (
	SoftCapHMS = "HMS"
	SoftCapMS  = "MS"
)

// CashflowConfig is the per-player financial configuration, fully typed
// and defaulted at load time. The stored document is schemaless, so every
// numeric field passes through the safe-number convention on read.
type CashflowConfig struct {
	InflowMonthly          float64 `json:"inflowMonthly"`
	OutflowMonthly         float64 `json:"outflowMonthly"`
	Cadence                string  `json:"cadence"`
	EnergyMode             string  `json:"energyMode"`
	CreditMode             string  `json:"creditMode"`
	PayCycleAnchorMs       int64   `json:"payCycleAnchorMs"` // 0 = unset, fall back to 1st of month
	EssenceBaselineEnabled bool    `json:"essenceBaselineEnabled"`
	RedistributionVector   HMS     `json:"redistributionVector"`
	EssenceSoftCapMode     string  `json:"essenceSoftCapMode"`
	OverflowBufferDays     float64 `json:"overflowBufferDays"`
	PoolAllocationWeights  Quad    `json:"poolAllocationWeights"`
}

// DefaultWeights is the allocation split used when the stored weights are
// missing, unreadable, or all zero.
var DefaultWeights = Quad{Health: 0.3, Mana: 0.3, Stamina: 0.3, Essence: 0.1}

// ParseCashflowConfig builds a typed config from a raw store document,
// applying every default exactly once. It never fails: a nil document
// yields the zero-income defaults.
func ParseCashflowConfig(doc Document) CashflowConfig {
	cfg := CashflowConfig{
		Cadence:                CadenceMonthly,
		EnergyMode:             EnergyContinuous,
		CreditMode:             CreditModeEssence,
		EssenceBaselineEnabled: true,
		RedistributionVector:   HMS{H: 1.0 / 3, M: 1.0 / 3, S: 1.0 / 3},
		EssenceSoftCapMode:     SoftCapHMS,
		PoolAllocationWeights:  DefaultWeights,
	}
	if doc == nil {
		return cfg
	}

	cfg.InflowMonthly = SafeNum(doc["inflowMonthly"], 0)
	cfg.OutflowMonthly = SafeNum(doc["outflowMonthly"], 0)
	cfg.Cadence = docStr(doc, "cadence", cfg.Cadence)
	cfg.EnergyMode = docStr(doc, "energyMode", cfg.EnergyMode)

	switch docStr(doc, "creditMode", cfg.CreditMode) {
	case CreditModeAllocate:
		cfg.CreditMode = CreditModeAllocate
	case CreditModeHealth:
		cfg.CreditMode = CreditModeHealth
	default:
		cfg.CreditMode = CreditModeEssence
	}

	cfg.PayCycleAnchorMs = int64(SafeNum(doc["payCycleAnchorMs"], 0))
	cfg.EssenceBaselineEnabled = docBool(doc, "essenceBaselineEnabled", true)

	if rv, ok := doc["redistributionVector"].(map[string]any); ok {
		cfg.RedistributionVector = HMS{
			H: SafeNum(rv["h"], cfg.RedistributionVector.H),
			M: SafeNum(rv["m"], cfg.RedistributionVector.M),
			S: SafeNum(rv["s"], cfg.RedistributionVector.S),
		}
	}

	if docStr(doc, "essenceSoftCapMode", cfg.EssenceSoftCapMode) == SoftCapMS {
		cfg.EssenceSoftCapMode = SoftCapMS
	}

	if b := SafeNum(doc["overflowBufferDays"], 0); b > 0 {
		cfg.OverflowBufferDays = b
	}

	if w, ok := doc["poolAllocationWeights"].(map[string]any); ok {
		cfg.PoolAllocationWeights = Quad{
			Health:  SafeNum(w["health"], DefaultWeights.Health),
			Mana:    SafeNum(w["mana"], DefaultWeights.Mana),
			Stamina: SafeNum(w["stamina"], DefaultWeights.Stamina),
			Essence: SafeNum(w["essence"], DefaultWeights.Essence),
		}
	}

	return cfg
}

func docStr(doc Document, key, def string) string {
	if s, ok := doc[key].(string); ok && s != "" {
		return s
	}
	return def
}

func docBool(doc Document, key string, def bool) bool {
	if b, ok := doc[key].(bool); ok {
		return b
	}
	return def
}
