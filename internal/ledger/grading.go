package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// grader returns the winning selection for a bet given the settlement state.
type grader func(b domain.Bet, placed domain.Score, s domain.SettlementSnapshot) domain.Selection

// graders is the settlement table. Every wagerable family has an entry; a
// bet whose family is missing settles as LOSS.
var graders = map[domain.MarketFamily]grader{
	domain.FamilyGoalYesNo:    gradeGoal,
	domain.FamilyStoppageGoal: gradeGoal,
	domain.FamilyWinner3Way:   gradeWinner,
	domain.FamilyOverUnder:    gradeOverUnder,
	domain.FamilyStoppageCard: gradeCard,
}

func gradeGoal(_ domain.Bet, placed domain.Score, s domain.SettlementSnapshot) domain.Selection {
	if s.Score != placed {
		return domain.SelectionYes
	}
	return domain.SelectionNo
}

func gradeWinner(_ domain.Bet, placed domain.Score, s domain.SettlementSnapshot) domain.Selection {
	home := s.Score.Home - placed.Home
	away := s.Score.Away - placed.Away
	switch {
	case home > away:
		return domain.SelectionHome
	case away > home:
		return domain.SelectionAway
	default:
		return domain.SelectionDraw
	}
}

func gradeOverUnder(b domain.Bet, placed domain.Score, s domain.SettlementSnapshot) domain.Selection {
	goals := decimal.NewFromInt(int64(s.Score.Total() - placed.Total()))
	if goals.GreaterThan(b.Line) {
		return domain.SelectionOver
	}
	return domain.SelectionUnder
}

func gradeCard(b domain.Bet, _ domain.Score, s domain.SettlementSnapshot) domain.Selection {
	if s.Cards > b.CardsAtPlacement {
		return domain.SelectionYes
	}
	return domain.SelectionNo
}

// due reports whether a pending bet can be graded against the snapshot.
func due(b domain.Bet, s domain.SettlementSnapshot) bool {
	if s.Clock.Finished() {
		return true
	}
	if b.WindowEnd != nil && s.Clock.CurrentMinute() > float64(*b.WindowEnd) {
		return true
	}
	return halfOver(b.Period, s.Clock.Phase())
}

// halfOver reports whether the half in which a bet was placed has ended.
func halfOver(placed, now domain.Period) bool {
	switch placed {
	case domain.PeriodFirstHalf, domain.PeriodStoppage1:
		switch now {
		case domain.PeriodHalfTime, domain.PeriodSecondHalf, domain.PeriodStoppage2, domain.PeriodFinished:
			return true
		}
	case domain.PeriodSecondHalf, domain.PeriodStoppage2:
		return now == domain.PeriodFinished
	}
	return false
}
