// Package lifecycle owns the markets of a single match and advances them once
// per scheduler tick.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// Market modes.
const (
	ModeFlash  = "flash"
	ModeLegacy = "legacy"
)

// Input is the per-tick state a book advances against.
type Input struct {
	Now    time.Time
	Clock  domain.MatchClock
	Score  domain.Score
	Cards  int
	Events []domain.MatchEvent
}

// Changes lists the transitions a single Advance produced.
type Changes struct {
	Opened   []domain.Market
	Resolved []domain.Market
}

// Empty reports whether nothing happened.
func (c Changes) Empty() bool { return len(c.Opened) == 0 && len(c.Resolved) == 0 }

// Book is the market lifecycle of one match. Implementations are not safe for
// concurrent use; callers hold the match lock.
type Book interface {
	Mode() string
	Advance(in Input) Changes
	View() []domain.MarketGroup
	Resolved() []domain.Market
	Market(id string) (domain.Market, bool)
}

// Options configure a book.
type Options struct {
	// CutoffMinute is the last minute at which a standard window may start.
	CutoffMinute int
	// History bounds the resolved markets kept for display.
	History int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{CutoffMinute: 90, History: 20}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CutoffMinute <= 0 {
		o.CutoffMinute = d.CutoffMinute
	}
	if o.History <= 0 {
		o.History = d.History
	}
	return o
}

// history is a bounded list of retired markets, oldest first.
type history struct {
	limit   int
	markets []domain.Market
}

func (h *history) add(m domain.Market) {
	h.markets = append(h.markets, m)
	if over := len(h.markets) - h.limit; over > 0 {
		h.markets = append(h.markets[:0:0], h.markets[over:]...)
	}
}

func (h *history) find(id string) (domain.Market, bool) {
	for i := len(h.markets) - 1; i >= 0; i-- {
		if h.markets[i].ID == id {
			return h.markets[i], true
		}
	}
	return domain.Market{}, false
}

func (h *history) snapshot() []domain.Market {
	out := make([]domain.Market, len(h.markets))
	for i, m := range h.markets {
		out[i] = m.Clone()
	}
	return out
}

func resolve(m *domain.Market, status domain.MarketStatus, outcome domain.Selection, now time.Time) {
	m.Status = status
	m.Outcome = outcome
	at := now
	m.ResolvedAt = &at
}

// Grade returns the winning selection of a market given the score and card
// count at the end of its window.
func Grade(m domain.Market, score domain.Score, cards int) domain.Selection {
	switch m.Kind.Family() {
	case domain.FamilyGoalYesNo, domain.FamilyStoppageGoal:
		if score.Total() > m.ScoreAtOpen.Total() {
			return domain.SelectionYes
		}
		return domain.SelectionNo
	case domain.FamilyStoppageCard:
		if cards > m.CardsAtOpen {
			return domain.SelectionYes
		}
		return domain.SelectionNo
	case domain.FamilyWinner3Way:
		home := score.Home - m.ScoreAtOpen.Home
		away := score.Away - m.ScoreAtOpen.Away
		switch {
		case home > away:
			return domain.SelectionHome
		case away > home:
			return domain.SelectionAway
		default:
			return domain.SelectionDraw
		}
	case domain.FamilyOverUnder:
		goals := score.Total() - m.ScoreAtOpen.Total()
		if m.Line.LessThan(decimal.NewFromInt(int64(goals))) {
			return domain.SelectionOver
		}
		return domain.SelectionUnder
	default:
		return ""
	}
}
