package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// MatchEngine is the slice of the engine the match endpoints use.
type MatchEngine interface {
	Matches() []domain.MatchView
	Markets(fixtureID int64) (domain.MarketsView, error)
	Track(snap domain.MatchSnapshot) error
	StopTracking(fixtureID int64) error
}

// MatchHandler serves match listing, markets and manual tracking.
type MatchHandler struct {
	engine MatchEngine
	cache  domain.MatchCache
	logger *slog.Logger
}

// NewMatchHandler creates a MatchHandler. cache may be nil, in which case only
// tracked matches are listed and manual tracking is unavailable.
func NewMatchHandler(engine MatchEngine, cache domain.MatchCache, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{engine: engine, cache: cache, logger: logger}
}

type matchEntry struct {
	domain.MatchView
	Status    domain.MatchStatus `json:"status"`
	KickoffAt string             `json:"kickoff_at,omitempty"`
}

// ListMatches returns tracked matches followed by the upcoming fixtures the
// feed has seen.
// GET /api/matches
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	views := h.engine.Matches()
	out := make([]matchEntry, 0, len(views))
	seen := make(map[int64]bool, len(views))
	for _, v := range views {
		seen[v.FixtureID] = true
		out = append(out, matchEntry{MatchView: v, Status: v.Clock.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FixtureID < out[j].FixtureID })

	if h.cache != nil {
		snaps, err := h.cache.List(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: match cache list failed",
				slog.String("error", err.Error()),
			)
		}
		for _, s := range snaps {
			if seen[s.FixtureID] {
				continue
			}
			e := matchEntry{
				MatchView: domain.MatchView{
					FixtureID:   s.FixtureID,
					HomeTeam:    s.HomeTeam,
					AwayTeam:    s.AwayTeam,
					Competition: s.Competition,
					Score:       s.Score(),
				},
				Status: s.Status,
			}
			if !s.KickoffAt.IsZero() {
				e.KickoffAt = s.KickoffAt.UTC().Format("2006-01-02T15:04:05Z")
			}
			out = append(out, e)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

// GetMarkets returns the live markets of a tracked match.
// GET /api/matches/{id}/markets
func (h *MatchHandler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	id, ok := fixtureParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	view, err := h.engine.Markets(id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get markets", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Track starts tracking a fixture from its last cached feed snapshot.
// POST /api/matches/{id}/track
func (h *MatchHandler) Track(w http.ResponseWriter, r *http.Request) {
	id, ok := fixtureParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	snap, err := h.snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "track match", err)
		return
	}
	if err := h.engine.Track(snap); err != nil {
		writeDomainError(w, r, h.logger, "track match", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: match tracked", slog.Int64("fixture_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"fixture_id": id, "tracked": true})
}

// Untrack stops tracking a fixture.
// DELETE /api/matches/{id}/track
func (h *MatchHandler) Untrack(w http.ResponseWriter, r *http.Request) {
	id, ok := fixtureParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	if err := h.engine.StopTracking(id); err != nil {
		writeDomainError(w, r, h.logger, "untrack match", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: match untracked", slog.Int64("fixture_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"fixture_id": id, "tracked": false})
}

func (h *MatchHandler) snapshot(ctx context.Context, id int64) (domain.MatchSnapshot, error) {
	if h.cache == nil {
		return domain.MatchSnapshot{}, fmt.Errorf("match %d: %w", id, domain.ErrNotFound)
	}
	return h.cache.Get(ctx, id)
}
