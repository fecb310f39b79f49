// Package market generates the canonical set of flash markets for a match
// clock. Generation is pure: identical inputs yield identical market ids.
package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// Display categories, in the order the generator emits them.
const (
	CategoryOneMinute  = "1 Minute"
	CategoryFiveMinute = "5 Minutes"
	CategoryTenMinute  = "10 Minutes"
	CategoryStoppage   = "Stoppage Time"
	CategoryInterval   = "Interval"
	CategoryNextGoal   = "Next Goal"
)

// OverUnderLine is the goal line of the 10-minute over/under market.
var OverUnderLine = decimal.RequireFromString("0.5")

// Opening prices per kind.
var openingPrices = map[domain.MarketKind]domain.PriceSet{
	domain.KindGoal1M: {
		domain.SelectionYes: decimal.RequireFromString("3.50"),
		domain.SelectionNo:  decimal.RequireFromString("1.25"),
	},
	domain.KindGoal5M: {
		domain.SelectionYes: decimal.RequireFromString("2.50"),
		domain.SelectionNo:  decimal.RequireFromString("1.50"),
	},
	domain.KindWinner5M: {
		domain.SelectionHome: decimal.RequireFromString("3.20"),
		domain.SelectionDraw: decimal.RequireFromString("1.60"),
		domain.SelectionAway: decimal.RequireFromString("3.60"),
	},
	domain.KindOverUnder10M: {
		domain.SelectionOver:  decimal.RequireFromString("2.10"),
		domain.SelectionUnder: decimal.RequireFromString("1.70"),
	},
	domain.KindStoppageGoal: {
		domain.SelectionYes: decimal.RequireFromString("4.50"),
		domain.SelectionNo:  decimal.RequireFromString("1.15"),
	},
	domain.KindStoppageCard: {
		domain.SelectionYes: decimal.RequireFromString("2.20"),
		domain.SelectionNo:  decimal.RequireFromString("1.60"),
	},
	domain.KindNextGoal5M: {
		domain.SelectionYes: decimal.RequireFromString("2.50"),
		domain.SelectionNo:  decimal.RequireFromString("1.50"),
	},
}

// OpeningPrices returns a fresh copy of the kind's opening prices.
func OpeningPrices(kind domain.MarketKind) domain.PriceSet {
	return openingPrices[kind].Clone()
}

// ID is the deterministic market id for a window.
func ID(fixtureID int64, kind domain.MarketKind, windowStart int) string {
	return fmt.Sprintf("%d-%s-%d", fixtureID, kind, windowStart)
}

// HalfBoundary is the nominal end minute of the half containing minute.
func HalfBoundary(minute int) int {
	if minute < 45 {
		return 45
	}
	return 90
}

// WindowStart is the bucket start of minute for a window of length n. Buckets
// never reach back across the half-time boundary.
func WindowStart(minute, n int) int {
	if n <= 1 {
		return minute
	}
	start := minute - minute%n
	if minute >= 45 && start < 45 {
		start = 45
	}
	return start
}

// Generate returns the markets that should exist for the clock right now.
func Generate(clock domain.MatchClock, score domain.Score) domain.CategorizedMarkets {
	period := clock.Phase()
	switch {
	case period == domain.PeriodHalfTime:
		return domain.CategorizedMarkets{{
			Category: CategoryInterval,
			Markets:  []domain.Market{interval(clock, score)},
		}}
	case period == domain.PeriodFinished:
		return nil
	case period.IsStoppage():
		return domain.CategorizedMarkets{{
			Category: CategoryStoppage,
			Markets: []domain.Market{
				stoppage(clock, score, period, domain.KindStoppageGoal),
				stoppage(clock, score, period, domain.KindStoppageCard),
			},
		}}
	}

	m := clock.Minute()
	return domain.CategorizedMarkets{
		{Category: CategoryOneMinute, Markets: []domain.Market{
			Windowed(clock.FixtureID, domain.KindGoal1M, m, score),
		}},
		{Category: CategoryFiveMinute, Markets: []domain.Market{
			Windowed(clock.FixtureID, domain.KindWinner5M, m, score),
			Windowed(clock.FixtureID, domain.KindGoal5M, m, score),
		}},
		{Category: CategoryTenMinute, Markets: []domain.Market{
			Windowed(clock.FixtureID, domain.KindOverUnder10M, m, score),
		}},
	}
}

// Windowed builds the standard market of kind whose window contains minute.
// The window is clamped to the half it starts in.
func Windowed(fixtureID int64, kind domain.MarketKind, minute int, score domain.Score) domain.Market {
	n := kind.WindowMinutes()
	start := WindowStart(minute, n)
	end := min(minute-minute%max(n, 1)+n, HalfBoundary(start))
	mk := domain.Market{
		ID:          ID(fixtureID, kind, start),
		FixtureID:   fixtureID,
		Kind:        kind,
		Title:       title(kind, start, end),
		WindowStart: start,
		WindowEnd:   &end,
		Status:      domain.MarketOpen,
		Prices:      OpeningPrices(kind),
		ScoreAtOpen: score,
		OpenedAt:    start * 60,
	}
	if kind == domain.KindOverUnder10M {
		mk.Line = OverUnderLine
	}
	return mk
}

func stoppage(clock domain.MatchClock, score domain.Score, period domain.Period, kind domain.MarketKind) domain.Market {
	start := 45
	if period == domain.PeriodStoppage2 {
		start = 90
	}
	return domain.Market{
		ID:          ID(clock.FixtureID, kind, start),
		FixtureID:   clock.FixtureID,
		Kind:        kind,
		Title:       title(kind, start, 0),
		WindowStart: start,
		Status:      domain.MarketOpen,
		Prices:      OpeningPrices(kind),
		ScoreAtOpen: score,
		OpenedAt:    clock.ElapsedSeconds,
	}
}

func interval(clock domain.MatchClock, score domain.Score) domain.Market {
	return domain.Market{
		ID:          ID(clock.FixtureID, domain.KindInterval, 45),
		FixtureID:   clock.FixtureID,
		Kind:        domain.KindInterval,
		Title:       "Half time",
		WindowStart: 45,
		Status:      domain.MarketClosed,
		ScoreAtOpen: score,
		OpenedAt:    clock.ElapsedSeconds,
	}
}

func title(kind domain.MarketKind, start, end int) string {
	switch kind {
	case domain.KindGoal1M:
		return fmt.Sprintf("Goal between %d:00 and %d:59?", start, start)
	case domain.KindGoal5M:
		return fmt.Sprintf("Goal between %d' and %d'?", start, end)
	case domain.KindWinner5M:
		return fmt.Sprintf("Who wins %d' to %d'?", start, end)
	case domain.KindOverUnder10M:
		return fmt.Sprintf("Over/under %s goals %d' to %d'", OverUnderLine, start, end)
	case domain.KindStoppageGoal:
		return "Goal in stoppage time?"
	case domain.KindStoppageCard:
		return "Card in stoppage time?"
	case domain.KindNextGoal5M:
		return "Goal in the next 5 minutes?"
	default:
		return string(kind)
	}
}
