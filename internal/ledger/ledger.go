// Package ledger holds account balances and bets, and settles pending bets
// against authoritative match state.
package ledger

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// Options configure the ledger.
type Options struct {
	InitialBalance decimal.Decimal
}

type account struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

// Ledger is safe for concurrent use. Each account has its own lock, so a
// placement and a settlement on the same account never interleave. The
// ledger lock only guards the maps and is never held while waiting on an
// account.
type Ledger struct {
	opts   Options
	logger *slog.Logger

	settleMu sync.Mutex

	mu       sync.RWMutex
	accounts map[string]*account
	pending  map[string]*domain.Bet
	byMatch  map[int64]map[string]struct{}
	archive  map[string][]domain.Bet
	settled  int
}

// New creates an empty ledger.
func New(opts Options, logger *slog.Logger) *Ledger {
	return &Ledger{
		opts:     opts,
		logger:   logger.With(slog.String("component", "ledger")),
		accounts: make(map[string]*account),
		pending:  make(map[string]*domain.Bet),
		byMatch:  make(map[int64]map[string]struct{}),
		archive:  make(map[string][]domain.Bet),
	}
}

func (l *Ledger) account(userID string) *account {
	l.mu.RLock()
	a, ok := l.accounts[userID]
	l.mu.RUnlock()
	if ok {
		return a
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[userID]; !ok {
		a = &account{balance: l.opts.InitialBalance}
		l.accounts[userID] = a
	}
	return a
}

// PlaceBet validates a request against the quote captured under the match
// lock and, on success, debits the stake and records a PENDING bet. A nil
// quote means the market does not exist. Failures are *domain.RejectionError.
func (l *Ledger) PlaceBet(req domain.PlaceBetRequest, q *domain.Quote, now time.Time) (domain.BetAccepted, error) {
	if q == nil {
		return domain.BetAccepted{}, domain.Reject(domain.RejectMarketNotFound, "market %s", req.MarketID)
	}
	m := q.Market
	if m.Status != domain.MarketOpen {
		return domain.BetAccepted{}, domain.Reject(domain.RejectMarketClosed, "market %s is %s", m.ID, m.Status)
	}
	if !q.Clock.Status.IsLive() {
		return domain.BetAccepted{}, domain.Reject(domain.RejectMatchNotLive, "match %d is %s", m.FixtureID, q.Clock.Status)
	}
	if m.WindowEnd != nil && q.Clock.CurrentMinute() >= float64(*m.WindowEnd) {
		return domain.BetAccepted{}, domain.Reject(domain.RejectWindowClosed, "window ended at %d'", *m.WindowEnd)
	}
	odds, ok := m.Prices[req.Selection]
	if !ok {
		return domain.BetAccepted{}, domain.Reject(domain.RejectInvalidSelection, "%q not offered on %s", req.Selection, m.ID)
	}
	if !req.Stake.IsPositive() {
		return domain.BetAccepted{}, domain.Reject(domain.RejectInvalidStake, "stake %s", req.Stake)
	}

	a := l.account(req.UserID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balance.LessThan(req.Stake) {
		return domain.BetAccepted{}, domain.Reject(domain.RejectInsufficientBalance, "balance %s, stake %s", a.balance, req.Stake)
	}
	a.balance = a.balance.Sub(req.Stake)

	bet := domain.Bet{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		MatchID:          m.FixtureID,
		MarketID:         m.ID,
		Kind:             m.Kind,
		Selection:        req.Selection,
		Stake:            req.Stake,
		Odds:             odds,
		Line:             m.Line,
		ScoreAtPlacement: q.Score.String(),
		CardsAtPlacement: q.Cards,
		WindowEnd:        cloneInt(m.WindowEnd),
		Period:           q.Clock.Phase(),
		Status:           domain.BetPending,
		Payout:           decimal.Zero,
		PlacedAt:         now,
	}

	l.mu.Lock()
	l.pending[bet.ID] = &bet
	ids, ok := l.byMatch[bet.MatchID]
	if !ok {
		ids = make(map[string]struct{})
		l.byMatch[bet.MatchID] = ids
	}
	ids[bet.ID] = struct{}{}
	l.mu.Unlock()

	return domain.BetAccepted{BetID: bet.ID, NewBalance: a.balance, Bet: bet}, nil
}

// ResolveBets grades every pending bet whose match is present in snapshots
// and is due. Settlement of a bet is all-or-nothing: the account is credited
// and the bet archived before it is reported.
func (l *Ledger) ResolveBets(snapshots map[int64]domain.SettlementSnapshot, now time.Time) []domain.BetSettled {
	l.settleMu.Lock()
	defer l.settleMu.Unlock()

	var work []domain.Bet
	l.mu.RLock()
	for matchID, ids := range l.byMatch {
		snap, ok := snapshots[matchID]
		if !ok {
			continue
		}
		for id := range ids {
			if b := l.pending[id]; due(*b, snap) {
				work = append(work, *b)
			}
		}
	}
	l.mu.RUnlock()
	if len(work) == 0 {
		return nil
	}
	slices.SortFunc(work, func(a, b domain.Bet) int { return a.PlacedAt.Compare(b.PlacedAt) })

	out := make([]domain.BetSettled, 0, len(work))
	for _, b := range work {
		snap := snapshots[b.MatchID]
		out = append(out, l.settle(b, snap, now))
	}
	return out
}

func (l *Ledger) settle(b domain.Bet, snap domain.SettlementSnapshot, now time.Time) domain.BetSettled {
	won := false
	placed, err := domain.ParseScore(b.ScoreAtPlacement)
	grade, ok := graders[b.Kind.Family()]
	switch {
	case err != nil:
		l.logger.Warn("unparseable placement score, settling as loss",
			slog.String("bet_id", b.ID), slog.String("score", b.ScoreAtPlacement), slog.String("error", err.Error()))
	case !ok:
		l.logger.Warn("no grader for market kind, settling as loss",
			slog.String("bet_id", b.ID), slog.String("kind", string(b.Kind)))
	default:
		won = grade(b, placed, snap) == b.Selection
	}

	payout := decimal.Zero
	if won {
		payout = b.Stake.Mul(b.Odds)
	}

	a := l.account(b.UserID)
	a.mu.Lock()
	a.balance = a.balance.Add(payout)
	balance := a.balance
	a.mu.Unlock()

	b.Payout = payout
	b.Status = domain.BetLoss
	if won {
		b.Status = domain.BetWin
	}
	at := now
	b.SettledAt = &at

	l.mu.Lock()
	delete(l.pending, b.ID)
	if ids, ok := l.byMatch[b.MatchID]; ok {
		delete(ids, b.ID)
		if len(ids) == 0 {
			delete(l.byMatch, b.MatchID)
		}
	}
	l.archive[b.UserID] = append(l.archive[b.UserID], b)
	l.settled++
	l.mu.Unlock()

	return domain.BetSettled{Bet: b, Payout: payout, NewBalance: balance, FinalScore: snap.Score.String()}
}

// HasPendingExposure reports whether any bet on the match is unsettled.
func (l *Ledger) HasPendingExposure(matchID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byMatch[matchID]) > 0
}

// Balance returns the user's balance, opening the account if needed.
func (l *Ledger) Balance(userID string) decimal.Decimal {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Bets returns the user's pending and settled bets, newest first.
func (l *Ledger) Bets(userID string) []domain.Bet {
	l.mu.RLock()
	out := slices.Clone(l.archive[userID])
	for _, b := range l.pending {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	l.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Bet) int { return b.PlacedAt.Compare(a.PlacedAt) })
	return out
}

// Stats is a point-in-time summary for status endpoints.
type Stats struct {
	Accounts int `json:"accounts"`
	Pending  int `json:"pending"`
	Settled  int `json:"settled"`
}

// Stats returns ledger counters.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{Accounts: len(l.accounts), Pending: len(l.pending), Settled: l.settled}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
