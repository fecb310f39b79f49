package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketKind is the closed set of wagerable propositions. The window length is
// part of the kind so that (fixture, kind, windowStart) identifies a market.
type MarketKind string

const (
	KindGoal1M       MarketKind = "goal_1m"
	KindGoal5M       MarketKind = "goal_5m"
	KindWinner5M     MarketKind = "winner_5m"
	KindOverUnder10M MarketKind = "over_under_10m"
	KindStoppageGoal MarketKind = "stoppage_goal"
	KindStoppageCard MarketKind = "stoppage_card"
	KindNextGoal5M   MarketKind = "next_goal_5m"
	KindInterval     MarketKind = "interval"
)

// MarketFamily groups kinds by how they are priced and graded.
type MarketFamily string

const (
	FamilyGoalYesNo    MarketFamily = "GOAL_YES_NO"
	FamilyWinner3Way   MarketFamily = "WINNER_3WAY"
	FamilyOverUnder    MarketFamily = "OVER_UNDER"
	FamilyStoppageGoal MarketFamily = "STOPPAGE_GOAL"
	FamilyStoppageCard MarketFamily = "STOPPAGE_CARD"
	FamilyInformative  MarketFamily = "INFORMATIVE"
)

// Family returns the kind's family. Unknown kinds map to the empty family.
func (k MarketKind) Family() MarketFamily {
	switch k {
	case KindGoal1M, KindGoal5M, KindNextGoal5M:
		return FamilyGoalYesNo
	case KindWinner5M:
		return FamilyWinner3Way
	case KindOverUnder10M:
		return FamilyOverUnder
	case KindStoppageGoal:
		return FamilyStoppageGoal
	case KindStoppageCard:
		return FamilyStoppageCard
	case KindInterval:
		return FamilyInformative
	default:
		return ""
	}
}

// IsGoalType reports whether a goal resolves the market as WIN.
func (k MarketKind) IsGoalType() bool {
	f := k.Family()
	return f == FamilyGoalYesNo || f == FamilyStoppageGoal
}

// IsStoppage reports whether the kind only exists during added time.
func (k MarketKind) IsStoppage() bool {
	return k == KindStoppageGoal || k == KindStoppageCard
}

// WindowMinutes is the nominal window length of a standard kind, 0 otherwise.
func (k MarketKind) WindowMinutes() int {
	switch k {
	case KindGoal1M:
		return 1
	case KindGoal5M, KindWinner5M, KindNextGoal5M:
		return 5
	case KindOverUnder10M:
		return 10
	default:
		return 0
	}
}

// MarketStatus is the market lifecycle state.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "OPEN"
	MarketSuspended MarketStatus = "SUSPENDED"
	MarketWin       MarketStatus = "WIN"
	MarketLoss      MarketStatus = "LOSS"
	MarketClosed    MarketStatus = "CLOSED"
)

// Terminal reports whether no further transition is possible.
func (s MarketStatus) Terminal() bool {
	return s == MarketWin || s == MarketLoss || s == MarketClosed
}

// Selection names an outcome within a market.
type Selection string

const (
	SelectionYes   Selection = "YES"
	SelectionNo    Selection = "NO"
	SelectionHome  Selection = "HOME"
	SelectionDraw  Selection = "DRAW"
	SelectionAway  Selection = "AWAY"
	SelectionOver  Selection = "OVER"
	SelectionUnder Selection = "UNDER"
)

// PriceSet maps each selection to its decimal odds.
type PriceSet map[Selection]decimal.Decimal

// Clone returns an independent copy.
func (p PriceSet) Clone() PriceSet {
	if p == nil {
		return nil
	}
	out := make(PriceSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MinOdds is the floor applied to every quoted price.
var MinOdds = decimal.RequireFromString("1.01")

// Market is a single wagerable proposition over a window of match minutes.
type Market struct {
	ID          string          `json:"id"`
	FixtureID   int64           `json:"fixture_id"`
	Kind        MarketKind      `json:"kind"`
	Title       string          `json:"title"`
	WindowStart int             `json:"window_start"`
	WindowEnd   *int            `json:"window_end"`
	Status      MarketStatus    `json:"status"`
	Prices      PriceSet        `json:"prices,omitempty"`
	Line        decimal.Decimal `json:"line,omitzero"`
	Progress    float64         `json:"progress"`
	ScoreAtOpen Score           `json:"score_at_open"`
	CardsAtOpen int             `json:"cards_at_open"`
	Outcome     Selection       `json:"outcome,omitempty"`
	OpenedAt    int             `json:"opened_at_seconds"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (m Market) Clone() Market {
	out := m
	out.Prices = m.Prices.Clone()
	if m.WindowEnd != nil {
		end := *m.WindowEnd
		out.WindowEnd = &end
	}
	if m.ResolvedAt != nil {
		at := *m.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// OpenEnded reports whether the window lasts until the period ends.
func (m Market) OpenEnded() bool { return m.WindowEnd == nil }

// MarketGroup is a display category of markets.
type MarketGroup struct {
	Category string   `json:"category"`
	Markets  []Market `json:"markets"`
}

// CategorizedMarkets is the generator output, ordered for display.
type CategorizedMarkets []MarketGroup

// All flattens the groups.
func (c CategorizedMarkets) All() []Market {
	var out []Market
	for _, g := range c {
		out = append(out, g.Markets...)
	}
	return out
}

// MarketsView is the per-tick broadcast payload for one match.
type MarketsView struct {
	FixtureID int64         `json:"fixture_id"`
	Clock     MatchClock    `json:"clock"`
	Score     Score         `json:"score"`
	Mode      string        `json:"mode"`
	Groups    []MarketGroup `json:"groups"`
	Resolved  []Market      `json:"resolved,omitempty"`
}
