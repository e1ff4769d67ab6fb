// Package sweep implements the ghost-expiry locking sweep.
//
// A pending transaction carries a ghost expiry; once that passes, the
// sweep confirms the transaction and, for debits, stamps the
// authoritative appliedAllocation computed against the pools' live
// availability at lock time. Availability depletes across the sweep, so
// two debits locked in the same pass cannot both drain the same pool
// balance. The sweep finishes with a full recompute.
package sweep

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/vitalgate/vitalgate/internal/domain"
	"github.com/vitalgate/vitalgate/internal/infra/observability"
	"github.com/vitalgate/vitalgate/internal/vitals"
)

// Sweeper locks expired pending transactions for a player.
type Sweeper struct {
	store  domain.DocumentStore
	txs    domain.TransactionStore
	engine *vitals.Engine
	clock  domain.Clock
}

// New creates a sweeper sharing the engine's store and source.
func New(store domain.DocumentStore, txs domain.TransactionStore, engine *vitals.Engine) *Sweeper {
	return &Sweeper{store: store, txs: txs, engine: engine, clock: domain.SystemClock{}}
}

// SetClock overrides the sweep clock (tests).
func (s *Sweeper) SetClock(c domain.Clock) { s.clock = c }

// Run locks every ghost-expired pending transaction in the player's
// resolved branch, then recomputes. Returns the number of transactions
// locked and the post-sweep recompute result.
func (s *Sweeper) Run(ctx context.Context, playerID string) (int, *vitals.Result, error) {
	src, err := vitals.ResolveSource(ctx, s.store, playerID)
	if err != nil {
		return 0, nil, err
	}

	snapDoc, err := s.store.Get(ctx, src.SnapshotPath)
	if err != nil {
		return 0, nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap := vitals.SnapshotFromDoc(snapDoc)
	avail := vitals.AvailabilityFrom(snap)

	txs, err := s.txs.Query(ctx, src.TxBranchPath)
	if err != nil {
		return 0, nil, fmt.Errorf("query transactions: %w", err)
	}

	nowMs := s.clock.Now().UnixMilli()
	locked := 0
	for _, t := range txs {
		if t.Status != domain.StatusPending || t.GhostExpiryMs <= 0 || nowMs < t.GhostExpiryMs {
			continue
		}

		t.Status = domain.StatusConfirmed
		if t.Amount < 0 {
			applied := vitals.Allocate(-t.Amount, t.IntentPool(), avail)
			t.AppliedAllocation = &applied
			avail.Health = math.Max(0, avail.Health-applied.Health)
			avail.Mana = math.Max(0, avail.Mana-applied.Mana)
			avail.Stamina = math.Max(0, avail.Stamina-applied.Stamina)
		}

		if _, err := s.txs.PutTransaction(ctx, src.TxBranchPath, t); err != nil {
			return locked, nil, fmt.Errorf("lock tx %s: %w", t.ID, err)
		}
		locked++
	}

	if locked > 0 {
		log.Printf("sweep: locked %d transaction(s) for player %s", locked, playerID)
		observability.SweptTransactions.Add(float64(locked))
	}

	res, err := s.engine.Recompute(ctx, playerID)
	if err != nil {
		return locked, nil, err
	}
	return locked, res, nil
}
