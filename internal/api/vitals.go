package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitalgate/vitalgate/internal/domain"
	"github.com/vitalgate/vitalgate/internal/vitals"
)

// ─── Vitals API ─────────────────────────────────────────────────────────────
//
// GET  /api/vitals/{player}               — last persisted snapshot
// POST /api/vitals/{player}/recompute     — run the engine, return snapshot + pending preview
// GET  /api/vitals/{player}/config        — cashflow config document
// PUT  /api/vitals/{player}/config        — merge-write config
// POST /api/vitals/{player}/transactions  — manual entry (unverified branch)
// POST /api/vitals/{player}/sweep         — lock expired pendings, recompute

// handleGetSnapshot returns the last persisted snapshot without running
// the engine.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	doc, err := s.store.Get(r.Context(), vitals.SnapshotPath(player))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, domain.ErrSnapshotNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleRecompute runs a full recompute and returns the fresh snapshot
// along with the signed pending preview (never persisted).
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	res, err := s.engine.Recompute(r.Context(), player)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrEmptyPlayerID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot":  res.Snapshot,
		"pending":   res.Pending,
		"branch":    res.Source.Branch,
		"bootstrap": res.Bootstrap,
	})
}

// handleGetConfig returns the raw cashflow config document.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	doc, err := s.store.Get(r.Context(), vitals.ConfigPath(player))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "cashflow config not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handlePutConfig merge-writes config fields from the request body.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.store.Set(r.Context(), vitals.ConfigPath(player), doc, true); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handlePostTransaction creates a manual-entry transaction in the
// unverified branch. The id is generated when absent.
func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	if player == "" {
		writeError(w, http.StatusBadRequest, domain.ErrEmptyPlayerID.Error())
		return
	}

	var t domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if t.OccurredAtMs == 0 {
		t.OccurredAtMs = time.Now().UnixMilli()
	}

	branch := vitals.TxBranchPath(player, vitals.BranchUnverified)
	stored, err := s.txs.PutTransaction(r.Context(), branch, t)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidAmount) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// handleSweep locks expired pending transactions and recomputes.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	locked, res, err := s.sweeper.Run(r.Context(), player)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrEmptyPlayerID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locked":   locked,
		"snapshot": res.Snapshot,
		"pending":  res.Pending,
	})
}
