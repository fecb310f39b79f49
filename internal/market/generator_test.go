package market

import (
	"testing"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

func liveClock(minute int, period domain.Period) domain.MatchClock {
	return domain.MatchClock{
		FixtureID:      42,
		ElapsedSeconds: minute*60 + 17,
		Period:         period,
		Status:         domain.MatchStatusLive,
	}
}

func byKind(c domain.CategorizedMarkets) map[domain.MarketKind]domain.Market {
	out := make(map[domain.MarketKind]domain.Market)
	for _, m := range c.All() {
		out[m.Kind] = m
	}
	return out
}

func TestGenerateStandardLadder(t *testing.T) {
	got := byKind(Generate(liveClock(13, domain.PeriodFirstHalf), domain.Score{}))

	tests := []struct {
		kind       domain.MarketKind
		start, end int
	}{
		{domain.KindGoal1M, 13, 14},
		{domain.KindWinner5M, 10, 15},
		{domain.KindGoal5M, 10, 15},
		{domain.KindOverUnder10M, 10, 20},
	}
	if len(got) != len(tests) {
		t.Fatalf("generated %d kinds, want %d", len(got), len(tests))
	}
	for _, tt := range tests {
		m, ok := got[tt.kind]
		if !ok {
			t.Errorf("missing %s", tt.kind)
			continue
		}
		if m.WindowStart != tt.start || m.WindowEnd == nil || *m.WindowEnd != tt.end {
			t.Errorf("%s window = [%d, %v), want [%d, %d)", tt.kind, m.WindowStart, m.WindowEnd, tt.start, tt.end)
		}
		if m.Status != domain.MarketOpen {
			t.Errorf("%s status = %s, want OPEN", tt.kind, m.Status)
		}
	}
	if !got[domain.KindOverUnder10M].Line.Equal(OverUnderLine) {
		t.Errorf("over/under line = %s, want %s", got[domain.KindOverUnder10M].Line, OverUnderLine)
	}
	if p := got[domain.KindGoal1M].Prices[domain.SelectionYes]; p.String() != "3.5" {
		t.Errorf("goal_1m yes = %s, want 3.5", p)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	clock := liveClock(27, domain.PeriodFirstHalf)
	a := Generate(clock, domain.Score{Home: 1})
	b := Generate(clock, domain.Score{Home: 1})

	am, bm := a.All(), b.All()
	if len(am) != len(bm) {
		t.Fatalf("len = %d vs %d", len(am), len(bm))
	}
	for i := range am {
		if am[i].ID != bm[i].ID {
			t.Errorf("id[%d] = %q vs %q", i, am[i].ID, bm[i].ID)
		}
	}
	if want := "42-goal_1m-27"; am[0].ID != want {
		t.Errorf("first id = %q, want %q", am[0].ID, want)
	}
}

func TestGenerateStoppage(t *testing.T) {
	for _, tt := range []struct {
		period domain.Period
		minute int
		start  int
	}{
		{domain.PeriodStoppage1, 46, 45},
		{domain.PeriodStoppage2, 92, 90},
	} {
		markets := Generate(liveClock(tt.minute, tt.period), domain.Score{}).All()
		if len(markets) != 2 {
			t.Fatalf("%s: %d markets, want 2", tt.period, len(markets))
		}
		for _, m := range markets {
			if !m.Kind.IsStoppage() {
				t.Errorf("%s: unexpected kind %s", tt.period, m.Kind)
			}
			if m.WindowEnd != nil {
				t.Errorf("%s: %s window end = %d, want nil", tt.period, m.Kind, *m.WindowEnd)
			}
			if m.WindowStart != tt.start {
				t.Errorf("%s: %s window start = %d, want %d", tt.period, m.Kind, m.WindowStart, tt.start)
			}
		}
	}
}

func TestGenerateHalfTimeAndFinished(t *testing.T) {
	ht := liveClock(45, domain.PeriodHalfTime)
	ht.Status = domain.MatchStatusHalfTime
	got := Generate(ht, domain.Score{})
	if len(got) != 1 || got[0].Category != CategoryInterval {
		t.Fatalf("half time groups = %+v", got)
	}
	if m := got[0].Markets[0]; m.Status != domain.MarketClosed || len(m.Prices) != 0 {
		t.Errorf("interval market = %+v, want closed without prices", m)
	}

	ft := liveClock(94, domain.PeriodFinished)
	ft.Status = domain.MatchStatusFinished
	if got := Generate(ft, domain.Score{}); len(got) != 0 {
		t.Errorf("finished generated %d groups, want 0", len(got))
	}
}

func TestWindowsClampToHalf(t *testing.T) {
	tests := []struct {
		kind       domain.MarketKind
		minute     int
		start, end int
	}{
		{domain.KindOverUnder10M, 44, 40, 45},
		{domain.KindOverUnder10M, 46, 45, 50},
		{domain.KindGoal5M, 47, 45, 50},
		{domain.KindOverUnder10M, 85, 80, 90},
		{domain.KindGoal1M, 89, 89, 90},
	}
	for _, tt := range tests {
		m := Windowed(1, tt.kind, tt.minute, domain.Score{})
		if m.WindowStart != tt.start || *m.WindowEnd != tt.end {
			t.Errorf("%s at %d = [%d, %d), want [%d, %d)", tt.kind, tt.minute, m.WindowStart, *m.WindowEnd, tt.start, tt.end)
		}
	}
}
