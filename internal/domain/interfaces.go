package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Document is a schemaless JSON object as stored and retrieved.
type Document = map[string]any

// DocumentStore abstracts the per-player document persistence.
// Get returns (nil, nil) for an absent document: missing documents are a
// normal domain state, never an error.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, doc any, merge bool) error
}

// TransactionSource abstracts the transaction collection read. The scan
// is unfiltered; classification and windowing happen in the aggregator.
type TransactionSource interface {
	Query(ctx context.Context, branchPath string) ([]Transaction, error)
}

// TransactionStore extends the read contract with writes, used by
// manual entry and the expiry lock sweep.
type TransactionStore interface {
	TransactionSource
	PutTransaction(ctx context.Context, branchPath string, t Transaction) (Transaction, error)
}

// Clock supplies the engine's notion of now, injectable for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current wall time.
func (SystemClock) Now() time.Time { return time.Now() }
