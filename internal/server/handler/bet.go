package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/service"
)

// BetService is what the bet endpoints need from the service layer.
type BetService interface {
	PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (domain.BetAccepted, error)
	Balance(userID string) domain.Account
	Bets(ctx context.Context, userID string, limit int) ([]domain.Bet, error)
	Settlements(ctx context.Context, after string, limit int) ([]service.SettlementEntry, error)
}

// BetHandler serves placement and account endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

// PlaceBet books a bet. Rejections answer 422 with the typed reason.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req domain.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.MarketID == "" || req.MatchID == 0 {
		writeError(w, http.StatusBadRequest, "user_id, match_id and market_id are required")
		return
	}

	acc, err := h.bets.PlaceBet(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// GetBalance returns a user's balance.
// GET /api/users/{id}/balance
func (h *BetHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("id")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	writeJSON(w, http.StatusOK, h.bets.Balance(user))
}

// ListBets returns a user's bets, newest first.
// GET /api/users/{id}/bets?limit=50
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("id")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	bets, err := h.bets.Bets(r.Context(), user, parseLimit(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list bets", err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

// ListSettlements replays recent settlements from the durable stream so a
// reconnecting client can catch up. Pass the last seen id as after.
// GET /api/settlements?after=&limit=
func (h *BetHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	entries, err := h.bets.Settlements(r.Context(), after, parseLimit(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list settlements", err)
		return
	}
	if entries == nil {
		entries = []service.SettlementEntry{}
	}
	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "next": next})
}
