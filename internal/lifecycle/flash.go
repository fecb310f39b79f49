package lifecycle

import (
	"slices"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/market"
	"github.com/alanyoungcy/flashbet/internal/odds"
)

type phase int

const (
	phaseNone phase = iota
	phaseStandard
	phaseStoppage1
	phaseStoppage2
	phaseInterval
	phaseFinished
)

func phaseOf(c domain.MatchClock) phase {
	switch c.Phase() {
	case domain.PeriodHalfTime:
		return phaseInterval
	case domain.PeriodFinished:
		return phaseFinished
	case domain.PeriodStoppage1:
		return phaseStoppage1
	case domain.PeriodStoppage2:
		return phaseStoppage2
	default:
		return phaseStandard
	}
}

type slot struct {
	category string
	kind     domain.MarketKind
}

// FlashBook runs the rotating 1/5/10 minute windows and the stoppage pair.
type FlashBook struct {
	opts  Options
	fluct *odds.Fluctuator

	phase   phase
	layout  []slot
	current map[domain.MarketKind]*domain.Market
	retired history
}

var _ Book = (*FlashBook)(nil)

// NewFlashBook creates an empty flash book.
func NewFlashBook(fluct *odds.Fluctuator, opts Options) *FlashBook {
	opts = opts.withDefaults()
	return &FlashBook{
		opts:    opts,
		fluct:   fluct,
		current: make(map[domain.MarketKind]*domain.Market),
		retired: history{limit: opts.History},
	}
}

// Mode implements Book.
func (b *FlashBook) Mode() string { return ModeFlash }

// Advance implements Book. Steps run in a fixed order: event resolution,
// period transition, expiry, rotation, progress, then odds.
func (b *FlashBook) Advance(in Input) Changes {
	var ch Changes
	clock := in.Clock

	b.resolveEvents(in, &ch)

	next := phaseOf(clock)
	if next != b.phase {
		b.transition(in, next, &ch)
	}

	for _, m := range b.current {
		if m.Status != domain.MarketOpen || m.WindowEnd == nil {
			continue
		}
		if clock.ElapsedSeconds >= *m.WindowEnd*60 {
			resolve(m, domain.MarketClosed, Grade(*m, in.Score, in.Cards), in.Now)
			ch.Resolved = append(ch.Resolved, m.Clone())
		}
	}

	b.rotate(in, &ch)

	for _, m := range b.current {
		if m.Status != domain.MarketOpen {
			continue
		}
		m.Progress = progress(*m, clock.ElapsedSeconds)
		b.fluct.Fluctuate(m)
	}
	return ch
}

func (b *FlashBook) resolveEvents(in Input, ch *Changes) {
	goal, card := false, false
	for _, ev := range in.Events {
		switch {
		case ev.Type == domain.EventGoal:
			goal = true
		case ev.Type.IsCard():
			card = true
		}
	}
	for _, m := range b.current {
		if m.Status != domain.MarketOpen {
			continue
		}
		switch m.Kind.Family() {
		case domain.FamilyGoalYesNo, domain.FamilyStoppageGoal:
			if goal || in.Score.Total() > m.ScoreAtOpen.Total() {
				resolve(m, domain.MarketWin, domain.SelectionYes, in.Now)
			}
		case domain.FamilyStoppageCard:
			if card || in.Cards > m.CardsAtOpen {
				resolve(m, domain.MarketWin, domain.SelectionYes, in.Now)
			}
		case domain.FamilyOverUnder:
			if Grade(*m, in.Score, in.Cards) == domain.SelectionOver {
				resolve(m, domain.MarketWin, domain.SelectionOver, in.Now)
			}
		}
		if m.Status != domain.MarketOpen {
			ch.Resolved = append(ch.Resolved, m.Clone())
		}
	}
}

// transition retires every market of the previous phase. Open ones resolve
// as LOSS with their graded outcome.
func (b *FlashBook) transition(in Input, next phase, ch *Changes) {
	for _, s := range b.layout {
		m, ok := b.current[s.kind]
		if !ok {
			continue
		}
		if m.Status == domain.MarketOpen {
			resolve(m, domain.MarketLoss, Grade(*m, in.Score, in.Cards), in.Now)
			ch.Resolved = append(ch.Resolved, m.Clone())
		}
		if m.Kind != domain.KindInterval {
			b.retired.add(m.Clone())
		}
		delete(b.current, s.kind)
	}
	b.phase = next
	b.layout = nil

	for _, g := range market.Generate(in.Clock, in.Score) {
		for _, m := range g.Markets {
			b.layout = append(b.layout, slot{category: g.Category, kind: m.Kind})
		}
	}
}

func (b *FlashBook) rotate(in Input, ch *Changes) {
	if b.phase == phaseFinished {
		return
	}
	for _, g := range market.Generate(in.Clock, in.Score) {
		for _, fresh := range g.Markets {
			cur, ok := b.current[fresh.Kind]
			if ok && cur.ID == fresh.ID {
				continue
			}
			if b.phase == phaseStandard && fresh.WindowStart >= b.opts.CutoffMinute {
				continue
			}
			if _, seen := b.retired.find(fresh.ID); seen {
				continue
			}
			if ok {
				if cur.Status == domain.MarketOpen {
					// superseded by a clock correction
					resolve(cur, domain.MarketClosed, "", in.Now)
					ch.Resolved = append(ch.Resolved, cur.Clone())
				}
				b.retired.add(cur.Clone())
			}
			m := fresh
			m.CardsAtOpen = in.Cards
			if m.Status == domain.MarketOpen {
				m.OpenedAt = in.Clock.ElapsedSeconds
			}
			b.current[m.Kind] = &m
			ch.Opened = append(ch.Opened, m.Clone())
		}
	}
}

func progress(m domain.Market, elapsed int) float64 {
	if m.WindowEnd == nil {
		return 99
	}
	length := (*m.WindowEnd - m.WindowStart) * 60
	if length <= 0 {
		return 100
	}
	p := float64(elapsed-m.WindowStart*60) / float64(length) * 100
	return min(max(p, 0), 100)
}

// View implements Book.
func (b *FlashBook) View() []domain.MarketGroup {
	var groups []domain.MarketGroup
	for _, s := range b.layout {
		m, ok := b.current[s.kind]
		if !ok {
			continue
		}
		i := slices.IndexFunc(groups, func(g domain.MarketGroup) bool { return g.Category == s.category })
		if i < 0 {
			groups = append(groups, domain.MarketGroup{Category: s.category})
			i = len(groups) - 1
		}
		groups[i].Markets = append(groups[i].Markets, m.Clone())
	}
	return groups
}

// Resolved implements Book.
func (b *FlashBook) Resolved() []domain.Market { return b.retired.snapshot() }

// Market implements Book. Retired markets are still found so that callers
// can tell a closed market from an unknown one.
func (b *FlashBook) Market(id string) (domain.Market, bool) {
	for _, m := range b.current {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	if m, ok := b.retired.find(id); ok {
		return m.Clone(), true
	}
	return domain.Market{}, false
}
