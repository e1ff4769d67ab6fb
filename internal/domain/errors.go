package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
// Missing documents and negative Health are NOT errors; they are valid
// domain states handled inline by the engine.

var (
	// Store errors
	ErrSnapshotNotFound = errors.New("gateway snapshot not found")
	ErrStoreClosed      = errors.New("document store is closed")

	// Transaction errors
	ErrInvalidAmount = errors.New("transaction amount must be a non-zero finite number")
	ErrUnknownPool   = errors.New("unknown pool tag")
	ErrUnknownMode   = errors.New("unknown credit mode")

	// Player errors
	ErrEmptyPlayerID = errors.New("player id must not be empty")
)
