package vitals

import (
	"context"
	"fmt"

	"github.com/vitalgate/vitalgate/internal/domain"
)

// ─── Data Source Resolution ─────────────────────────────────────────────────

// Branch names for the two transaction verification branches.
const (
	BranchVerified   = "verified"
	BranchUnverified = "unverified"
)

// Source is the per-call resolution of which documents are authoritative
// for a player. It is threaded explicitly through the recompute instead
// of being held in mutable package state.
type Source struct {
	PlayerID     string
	Branch       string
	ConfigPath   string
	SnapshotPath string
	TxBranchPath string
	LinkPath     string
}

// ConfigPath returns the cashflow config document path for a player.
func ConfigPath(playerID string) string {
	return fmt.Sprintf("players/%s/config/cashflow", playerID)
}

// SnapshotPath returns the gateway snapshot document path for a player.
func SnapshotPath(playerID string) string {
	return fmt.Sprintf("players/%s/state/gateway", playerID)
}

// LinkPath returns the bank-link marker document path for a player.
func LinkPath(playerID string) string {
	return fmt.Sprintf("players/%s/link", playerID)
}

// TxBranchPath returns the transaction collection path for a branch.
func TxBranchPath(playerID, branch string) string {
	return fmt.Sprintf("players/%s/tx/%s", playerID, branch)
}

// ResolveSource decides which transaction branch and which documents are
// authoritative for a player. The verified branch is selected only when
// the player's link marker exists with verified=true; everything else
// reads the unverified branch.
func ResolveSource(ctx context.Context, store domain.DocumentStore, playerID string) (Source, error) {
	if playerID == "" {
		return Source{}, domain.ErrEmptyPlayerID
	}

	branch := BranchUnverified
	link, err := store.Get(ctx, LinkPath(playerID))
	if err != nil {
		return Source{}, fmt.Errorf("read link marker: %w", err)
	}
	if v, ok := link["verified"].(bool); ok && v {
		branch = BranchVerified
	}

	return Source{
		PlayerID:     playerID,
		Branch:       branch,
		ConfigPath:   ConfigPath(playerID),
		SnapshotPath: SnapshotPath(playerID),
		TxBranchPath: TxBranchPath(playerID, branch),
		LinkPath:     LinkPath(playerID),
	}, nil
}
