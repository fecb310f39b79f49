package lifecycle

import (
	"testing"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

func ev(t domain.MatchEventType) []domain.MatchEvent {
	return []domain.MatchEvent{{FixtureID: 7, Type: t}}
}

func TestLegacyBookLifecycle(t *testing.T) {
	b := NewLegacyBook(DefaultOptions())

	if ch := b.Advance(Input{Now: now, Clock: clockAt(10*60, domain.PeriodFirstHalf), Events: ev(domain.EventDanger)}); !ch.Empty() {
		t.Fatalf("danger with no market produced %+v", ch)
	}

	ch := b.Advance(Input{Now: now, Clock: clockAt(10*60, domain.PeriodFirstHalf), Events: ev(domain.EventSafe)})
	if len(ch.Opened) != 1 {
		t.Fatalf("safe opened %d markets, want 1", len(ch.Opened))
	}
	m := ch.Opened[0]
	if m.Kind != domain.KindNextGoal5M || m.Prices[domain.SelectionYes].String() != "2.5" {
		t.Errorf("opened = %s yes=%s", m.Kind, m.Prices[domain.SelectionYes])
	}

	b.Advance(Input{Now: now, Clock: clockAt(11*60, domain.PeriodFirstHalf), Events: ev(domain.EventCorner)})
	if got, _ := b.Market(m.ID); got.Status != domain.MarketSuspended {
		t.Fatalf("after corner status = %s, want SUSPENDED", got.Status)
	}
	b.Advance(Input{Now: now, Clock: clockAt(11*60+5, domain.PeriodFirstHalf), Events: ev(domain.EventSafe)})
	if got, _ := b.Market(m.ID); got.Status != domain.MarketOpen {
		t.Fatalf("after safe status = %s, want OPEN", got.Status)
	}

	ch = b.Advance(Input{Now: now, Clock: clockAt(12*60, domain.PeriodFirstHalf), Score: domain.Score{Away: 1}, Events: ev(domain.EventGoal)})
	if len(ch.Resolved) != 1 || ch.Resolved[0].Status != domain.MarketWin {
		t.Fatalf("goal resolved %+v, want WIN", ch.Resolved)
	}
}

func TestLegacyBookTimesOutAndDecays(t *testing.T) {
	b := NewLegacyBook(DefaultOptions())
	b.Advance(Input{Now: now, Clock: clockAt(20*60, domain.PeriodFirstHalf), Events: ev(domain.EventSafe)})

	b.Advance(Input{Now: now, Clock: clockAt(22*60+30, domain.PeriodFirstHalf)})
	mid := b.View()[0].Markets[0]
	if mid.Progress != 50 {
		t.Errorf("progress = %v, want 50", mid.Progress)
	}
	if got := mid.Prices[domain.SelectionYes].String(); got != "6.25" {
		t.Errorf("yes at half window = %s, want 6.25", got)
	}
	if got := mid.Prices[domain.SelectionNo].String(); got != "1.26" {
		t.Errorf("no at half window = %s, want 1.26", got)
	}

	ch := b.Advance(Input{Now: now, Clock: clockAt(25*60, domain.PeriodFirstHalf)})
	if len(ch.Resolved) != 1 || ch.Resolved[0].Status != domain.MarketLoss {
		t.Fatalf("timeout resolved %+v, want LOSS", ch.Resolved)
	}
}
