package domain

// ─── Transaction Types ──────────────────────────────────────────────────────

// Transaction status values.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// Classification values for core cashflow entries. Core flows are
// aggregated as monthly totals in the config, never itemized, so the
// aggregator skips them.
const (
	ClassCoreInflow  = "coreInflow"
	ClassCoreOutflow = "coreOutflow"
)

// Credit routing modes. A per-transaction override always wins over the
// config-level mode.
const (
	CreditModeEssence  = "essence"
	CreditModeAllocate = "allocate"
	CreditModeHealth   = "health"
)

// PoolTag carries the intent pool a transaction was tagged with.
type PoolTag struct {
	Pool string `json:"pool"`
}

// Transaction is a single financial entry. Amount is signed:
// positive = credit, negative = debit.
type Transaction struct {
	ID                 string   `json:"id"`
	Amount             float64  `json:"amount"`
	Status             string   `json:"status"`
	Classification     string   `json:"classification,omitempty"`
	OccurredAtMs       int64    `json:"occurredAtMs"`
	Tag                *PoolTag `json:"tag,omitempty"`
	ProvisionalTag     *PoolTag `json:"provisionalTag,omitempty"`
	CreditModeOverride string   `json:"creditModeOverride,omitempty"`
	AppliedAllocation  *Quad    `json:"appliedAllocation,omitempty"`
	GhostExpiryMs      int64    `json:"ghostExpiryMs,omitempty"`
}

// IsCredit reports whether the transaction adds value to a pool.
func (t Transaction) IsCredit() bool { return t.Amount > 0 }

// IsCore reports whether the transaction is a core monthly flow and
// therefore excluded from itemized aggregation.
func (t Transaction) IsCore() bool {
	return t.Classification == ClassCoreInflow || t.Classification == ClassCoreOutflow
}

// ConfirmedAt reports whether the transaction counts as confirmed at
// nowMs. A pending transaction whose ghost expiry has passed is treated
// as confirmed (auto-confirm), even if the locking sweep has not stamped
// it yet.
func (t Transaction) ConfirmedAt(nowMs int64) bool {
	if t.Status == StatusConfirmed {
		return true
	}
	return t.Status == StatusPending && t.GhostExpiryMs > 0 && nowMs >= t.GhostExpiryMs
}

// ParseTransaction builds a typed transaction from a raw store document.
// Field-level tolerance follows the safe-number convention: a malformed
// field degrades to its zero default instead of poisoning the scan.
func ParseTransaction(id string, doc Document) Transaction {
	t := Transaction{ID: id, Status: StatusPending}
	if doc == nil {
		return t
	}
	t.Amount = SafeNum(doc["amount"], 0)
	if s, ok := doc["status"].(string); ok && (s == StatusPending || s == StatusConfirmed) {
		t.Status = s
	}
	t.Classification, _ = doc["classification"].(string)
	t.OccurredAtMs = int64(SafeNum(doc["occurredAtMs"], 0))
	t.CreditModeOverride, _ = doc["creditModeOverride"].(string)
	t.GhostExpiryMs = int64(SafeNum(doc["ghostExpiryMs"], 0))

	if tag := parsePoolTag(doc["tag"]); tag != nil {
		t.Tag = tag
	}
	if tag := parsePoolTag(doc["provisionalTag"]); tag != nil {
		t.ProvisionalTag = tag
	}
	if aa, ok := doc["appliedAllocation"].(map[string]any); ok {
		q := Quad{
			Health:  SafeNum(aa["health"], 0),
			Mana:    SafeNum(aa["mana"], 0),
			Stamina: SafeNum(aa["stamina"], 0),
			Essence: SafeNum(aa["essence"], 0),
		}
		t.AppliedAllocation = &q
	}
	return t
}

func parsePoolTag(v any) *PoolTag {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	p, ok := m["pool"].(string)
	if !ok || p == "" {
		return nil
	}
	return &PoolTag{Pool: p}
}

// IntentPool resolves the tagged intent, preferring the committed tag
// over the provisional one. Empty when untagged.
func (t Transaction) IntentPool() string {
	if t.Tag != nil && t.Tag.Pool != "" {
		return t.Tag.Pool
	}
	if t.ProvisionalTag != nil && t.ProvisionalTag.Pool != "" {
		return t.ProvisionalTag.Pool
	}
	return ""
}
