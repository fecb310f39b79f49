package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/market"
)

// LegacyWindow is the lifetime of the single next-goal market.
const LegacyWindow = 5

var (
	legacyYesStart = decimal.RequireFromString("2.50")
	legacyYesEnd   = decimal.RequireFromString("10.00")
	legacyNoStart  = decimal.RequireFromString("1.50")
	legacyNoEnd    = domain.MinOdds
)

// LegacyBook runs one "next goal in 5 minutes" market that opens on safe
// play, suspends on dangerous play and decays its odds over the window.
type LegacyBook struct {
	opts    Options
	current *domain.Market
	retired history
}

var _ Book = (*LegacyBook)(nil)

// NewLegacyBook creates an empty legacy book.
func NewLegacyBook(opts Options) *LegacyBook {
	opts = opts.withDefaults()
	return &LegacyBook{opts: opts, retired: history{limit: opts.History}}
}

// Mode implements Book.
func (b *LegacyBook) Mode() string { return ModeLegacy }

func suspends(t domain.MatchEventType) bool {
	switch t {
	case domain.EventDanger, domain.EventCorner, domain.EventRedCard, domain.EventPenalty, domain.EventFreeKick:
		return true
	default:
		return false
	}
}

// Advance implements Book.
func (b *LegacyBook) Advance(in Input) Changes {
	var ch Changes
	period := in.Clock.Phase()

	if m := b.current; m != nil && !m.Status.Terminal() {
		switch {
		case hasGoal(in.Events) || in.Score.Total() > m.ScoreAtOpen.Total():
			resolve(m, domain.MarketWin, domain.SelectionYes, in.Now)
		case in.Clock.ElapsedSeconds >= *m.WindowEnd*60 || period == domain.PeriodFinished || period == domain.PeriodHalfTime:
			resolve(m, domain.MarketLoss, domain.SelectionNo, in.Now)
		}
		if m.Status.Terminal() {
			ch.Resolved = append(ch.Resolved, m.Clone())
		}
	}

	for _, ev := range in.Events {
		switch {
		case ev.Type == domain.EventSafe:
			b.onSafe(in, period, &ch)
		case suspends(ev.Type):
			if b.current != nil && b.current.Status == domain.MarketOpen {
				b.current.Status = domain.MarketSuspended
			}
		}
	}

	if m := b.current; m != nil && !m.Status.Terminal() {
		m.Progress = progress(*m, in.Clock.ElapsedSeconds)
		if m.Status == domain.MarketOpen {
			m.Prices = decay(m.Progress)
		}
	}
	return ch
}

func (b *LegacyBook) onSafe(in Input, period domain.Period, ch *Changes) {
	if b.current != nil {
		switch {
		case b.current.Status == domain.MarketSuspended:
			b.current.Status = domain.MarketOpen
			return
		case !b.current.Status.Terminal():
			return
		}
	}
	if period != domain.PeriodFirstHalf && period != domain.PeriodSecondHalf {
		return
	}
	if !in.Clock.Status.IsLive() {
		return
	}
	minute := in.Clock.Minute()
	end := min(minute+LegacyWindow, market.HalfBoundary(minute))
	if minute >= b.opts.CutoffMinute || end <= minute {
		return
	}
	id := market.ID(in.Clock.FixtureID, domain.KindNextGoal5M, minute)
	if _, seen := b.retired.find(id); seen || (b.current != nil && b.current.ID == id) {
		return
	}
	if b.current != nil {
		b.retired.add(b.current.Clone())
	}
	m := domain.Market{
		ID:          id,
		FixtureID:   in.Clock.FixtureID,
		Kind:        domain.KindNextGoal5M,
		Title:       "Goal in the next 5 minutes?",
		WindowStart: minute,
		WindowEnd:   &end,
		Status:      domain.MarketOpen,
		Prices:      decay(0),
		ScoreAtOpen: in.Score,
		CardsAtOpen: in.Cards,
		OpenedAt:    in.Clock.ElapsedSeconds,
	}
	b.current = &m
	ch.Opened = append(ch.Opened, m.Clone())
}

func hasGoal(events []domain.MatchEvent) bool {
	for _, ev := range events {
		if ev.Type == domain.EventGoal {
			return true
		}
	}
	return false
}

// decay interpolates the prices linearly with window progress in [0, 100].
func decay(progress float64) domain.PriceSet {
	p := decimal.NewFromFloat(progress / 100)
	return domain.PriceSet{
		domain.SelectionYes: lerp(legacyYesStart, legacyYesEnd, p),
		domain.SelectionNo:  lerp(legacyNoStart, legacyNoEnd, p),
	}
}

func lerp(from, to, p decimal.Decimal) decimal.Decimal {
	return from.Add(to.Sub(from).Mul(p)).Round(2)
}

// View implements Book.
func (b *LegacyBook) View() []domain.MarketGroup {
	if b.current == nil {
		return nil
	}
	return []domain.MarketGroup{{
		Category: market.CategoryNextGoal,
		Markets:  []domain.Market{b.current.Clone()},
	}}
}

// Resolved implements Book.
func (b *LegacyBook) Resolved() []domain.Market { return b.retired.snapshot() }

// Market implements Book.
func (b *LegacyBook) Market(id string) (domain.Market, bool) {
	if b.current != nil && b.current.ID == id {
		return b.current.Clone(), true
	}
	if m, ok := b.retired.find(id); ok {
		return m.Clone(), true
	}
	return domain.Market{}, false
}
