package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/flashbet/internal/ledger"
	"github.com/alanyoungcy/flashbet/internal/service"
)

// StatusSource reports runtime state for the status endpoint.
type StatusSource interface {
	Status() service.Status
}

// LedgerStats reports ledger counters.
type LedgerStats interface {
	Stats() ledger.Stats
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	mode       string
	marketMode string
	startedAt  time.Time
	ticks      StatusSource
	ledger     LedgerStats
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, marketMode string, startedAt time.Time, ticks StatusSource, l LedgerStats) *StatusHandler {
	return &StatusHandler{mode: mode, marketMode: marketMode, startedAt: startedAt, ticks: ticks, ledger: l}
}

// GetStatus responds with the run mode, last tick summary and ledger counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"market_mode":    h.marketMode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"engine":         h.ticks.Status(),
		"ledger":         h.ledger.Stats(),
	})
}
