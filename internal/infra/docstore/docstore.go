// Package docstore persists schemaless JSON documents and per-player
// transaction collections in SQLite (pure Go driver, no CGO).
//
// Documents are addressed by slash-separated paths and merge-written the
// way the dashboard's document store behaves: a merge Set deep-merges
// object fields into the existing document, a plain Set replaces it.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vitalgate/vitalgate/internal/domain"
)

// DB wraps the SQLite handle and implements domain.DocumentStore and
// domain.TransactionSource.
type DB struct {
	db *sql.DB
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Schemaless JSON documents addressed by path
		`CREATE TABLE IF NOT EXISTS documents (
			path       TEXT PRIMARY KEY,
			body       TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Transaction collections, one row per transaction per branch
		`CREATE TABLE IF NOT EXISTS transactions (
			branch_path    TEXT NOT NULL,
			id             TEXT NOT NULL,
			occurred_at_ms INTEGER NOT NULL DEFAULT 0,
			body           TEXT NOT NULL DEFAULT '{}',
			updated_at     TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (branch_path, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_branch_time ON transactions(branch_path, occurred_at_ms)`,
	}
}

// Open creates (or opens) the store under dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dsn := filepath.Join(dir, "vitalgate.db") +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, stmt := range Migrations() {
		if _, err := sqlDB.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &DB{db: sqlDB}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// ─── Document Operations ────────────────────────────────────────────────────

// Get returns the document at path, or (nil, nil) when absent.
func (d *DB) Get(ctx context.Context, path string) (domain.Document, error) {
	var body string
	err := d.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE path = ?`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// Set writes a document at path. doc may be any JSON-marshalable value.
// With merge=true, object fields are deep-merged into the existing
// document; with merge=false the document is replaced wholesale.
func (d *DB) Set(ctx context.Context, path string, doc any, merge bool) error {
	incoming, err := toDocument(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if !merge {
		return d.upsertDocument(ctx, path, incoming)
	}

	existing, err := d.Get(ctx, path)
	if err != nil {
		return err
	}
	if existing != nil {
		incoming = deepMerge(existing, incoming)
	}
	return d.upsertDocument(ctx, path, incoming)
}

func (d *DB) upsertDocument(ctx context.Context, path string, doc domain.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO documents (path, body, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(path) DO UPDATE SET
			body       = excluded.body,
			updated_at = datetime('now')
	`, path, string(body))
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// toDocument round-trips any JSON-marshalable value into a Document.
func toDocument(v any) (domain.Document, error) {
	if doc, ok := v.(domain.Document); ok {
		return doc, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// deepMerge merges src into dst recursively: nested objects merge,
// everything else (including arrays) is overwritten by src.
func deepMerge(dst, src domain.Document) domain.Document {
	out := domain.Document{}
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(dv, sv)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ─── Transaction Operations ─────────────────────────────────────────────────

// Query returns every transaction in a branch, oldest first. Rows that
// fail to decode degrade to safe defaults rather than aborting the scan.
func (d *DB) Query(ctx context.Context, branchPath string) ([]domain.Transaction, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, body FROM transactions
		WHERE branch_path = ?
		ORDER BY occurred_at_ms, id
	`, branchPath)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", branchPath, err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", branchPath, err)
		}
		var doc domain.Document
		_ = json.Unmarshal([]byte(body), &doc)
		txs = append(txs, domain.ParseTransaction(id, doc))
	}
	return txs, rows.Err()
}

// PutTransaction inserts or updates a transaction in a branch. An empty
// id gets a fresh UUID. Non-finite or zero amounts are rejected.
func (d *DB) PutTransaction(ctx context.Context, branchPath string, t domain.Transaction) (domain.Transaction, error) {
	if t.Amount == 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return t, domain.ErrInvalidAmount
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}

	body, err := json.Marshal(t)
	if err != nil {
		return t, fmt.Errorf("marshal tx %s: %w", t.ID, err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO transactions (branch_path, id, occurred_at_ms, body, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(branch_path, id) DO UPDATE SET
			occurred_at_ms = excluded.occurred_at_ms,
			body           = excluded.body,
			updated_at     = datetime('now')
	`, branchPath, t.ID, t.OccurredAtMs, string(body))
	if err != nil {
		return t, fmt.Errorf("put tx %s: %w", t.ID, err)
	}
	return t, nil
}
