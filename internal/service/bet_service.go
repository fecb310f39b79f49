package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/metrics"
)

// BetPlacer validates and books a bet. *engine.Engine satisfies it.
type BetPlacer interface {
	PlaceBet(req domain.PlaceBetRequest, now time.Time) (domain.BetAccepted, error)
}

// AccountReader exposes balances and in-memory bets. *ledger.Ledger
// satisfies it.
type AccountReader interface {
	Balance(userID string) decimal.Decimal
	Bets(userID string) []domain.Bet
}

// BetServiceConfig holds placement limits.
type BetServiceConfig struct {
	RateLimit    int
	RateWindow   time.Duration
	HistoryLimit int
}

// BetService is the entry point for user bet actions. It applies the per-user
// rate limit, books through the engine, and records and broadcasts the
// outcome either way.
type BetService struct {
	placer   BetPlacer
	accounts AccountReader
	history  domain.SettledBetStore
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	audit    domain.AuditStore
	metrics  *metrics.Metrics
	cfg      BetServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewBetService creates a BetService. history, limiter, bus, audit and m may
// be nil.
func NewBetService(
	placer BetPlacer,
	accounts AccountReader,
	history domain.SettledBetStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	auditStore domain.AuditStore,
	m *metrics.Metrics,
	cfg BetServiceConfig,
	logger *slog.Logger,
) *BetService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &BetService{
		placer:   placer,
		accounts: accounts,
		history:  history,
		limiter:  limiter,
		bus:      bus,
		audit:    auditStore,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "bet_service")),
		now:      time.Now,
	}
}

// PlaceBet books req. A refusal comes back as a *domain.RejectionError that
// matches domain.ErrBetRejected.
func (s *BetService) PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (domain.BetAccepted, error) {
	if req.UserID == "" {
		return domain.BetAccepted{}, fmt.Errorf("bet_service: user id required")
	}
	req.Selection = domain.NormalizeSelection(string(req.Selection))
	now := s.now()

	if !s.allow(ctx, req.UserID) {
		rej := domain.Reject(domain.RejectRateLimited, "more than %d bets in %s", s.cfg.RateLimit, s.cfg.RateWindow)
		s.rejected(ctx, req, rej, now)
		return domain.BetAccepted{}, rej
	}

	acc, err := s.placer.PlaceBet(req, now)
	if err != nil {
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			s.rejected(ctx, req, rej, now)
		}
		return domain.BetAccepted{}, err
	}

	s.metrics.BetPlaced()
	s.logger.InfoContext(ctx, "bet placed",
		slog.String("bet_id", acc.BetID),
		slog.String("user_id", req.UserID),
		slog.Int64("match_id", req.MatchID),
		slog.String("market_id", req.MarketID),
		slog.String("selection", string(acc.Bet.Selection)),
		slog.String("stake", acc.Bet.Stake.String()),
		slog.String("odds", acc.Bet.Odds.String()),
	)
	publish(ctx, s.bus, s.logger, domain.BetsChannel(req.UserID), EventBetAccepted, acc, now)
	audit(ctx, s.audit, s.logger, domain.AuditBetPlaced, map[string]any{
		"bet_id":    acc.BetID,
		"user_id":   req.UserID,
		"match_id":  req.MatchID,
		"market_id": req.MarketID,
		"selection": acc.Bet.Selection,
		"stake":     acc.Bet.Stake.String(),
		"odds":      acc.Bet.Odds.String(),
		"balance":   acc.NewBalance.String(),
	})
	return acc, nil
}

// allow applies the per-user rate limit. Limiter errors fail open.
func (s *BetService) allow(ctx context.Context, userID string) bool {
	if s.limiter == nil || s.cfg.RateLimit <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(ctx, "bets:"+userID, s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable, allowing bet",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return true
	}
	return ok
}

func (s *BetService) rejected(ctx context.Context, req domain.PlaceBetRequest, rej *domain.RejectionError, now time.Time) {
	s.metrics.BetRejected(string(rej.Reason))
	s.logger.InfoContext(ctx, "bet rejected",
		slog.String("user_id", req.UserID),
		slog.Int64("match_id", req.MatchID),
		slog.String("market_id", req.MarketID),
		slog.String("reason", string(rej.Reason)),
		slog.String("detail", rej.Detail),
	)
	publish(ctx, s.bus, s.logger, domain.BetsChannel(req.UserID), EventBetRejected, rej.BetRejected, now)
	audit(ctx, s.audit, s.logger, domain.AuditBetRejected, map[string]any{
		"user_id":   req.UserID,
		"match_id":  req.MatchID,
		"market_id": req.MarketID,
		"selection": req.Selection,
		"stake":     req.Stake.String(),
		"reason":    rej.Reason,
		"detail":    rej.Detail,
	})
}

// Balance returns the user's account.
func (s *BetService) Balance(userID string) domain.Account {
	return domain.Account{UserID: userID, Balance: s.accounts.Balance(userID)}
}

// Bets returns the user's bets newest first: everything still in memory plus
// persisted history when a store is configured. A limit of zero uses the
// configured default.
func (s *BetService) Bets(ctx context.Context, userID string, limit int) ([]domain.Bet, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	bets := s.accounts.Bets(userID)

	if s.history != nil {
		stored, err := s.history.ListByUser(ctx, userID, domain.ListOpts{Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("bet_service: history for %s: %w", userID, err)
		}
		seen := make(map[string]bool, len(bets))
		for _, b := range bets {
			seen[b.ID] = true
		}
		for _, b := range stored {
			if !seen[b.ID] {
				bets = append(bets, b)
			}
		}
	}

	sort.SliceStable(bets, func(i, j int) bool { return bets[i].PlacedAt.After(bets[j].PlacedAt) })
	if len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

// SettlementEntry is one replayed settlement with its stream cursor.
type SettlementEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// Settlements replays settlement envelopes appended after the given stream
// id. An empty after starts from the oldest retained entry.
func (s *BetService) Settlements(ctx context.Context, after string, limit int) ([]SettlementEntry, error) {
	if s.bus == nil {
		return nil, nil
	}
	if after == "" {
		after = "0"
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	msgs, err := s.bus.StreamRead(ctx, SettlementStream, after, limit)
	if err != nil {
		return nil, fmt.Errorf("bet_service: settlements: %w", err)
	}
	out := make([]SettlementEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			s.logger.WarnContext(ctx, "skipping malformed settlement entry", slog.String("id", m.ID))
			continue
		}
		out = append(out, SettlementEntry{ID: m.ID, Event: m.Payload})
	}
	return out, nil
}
