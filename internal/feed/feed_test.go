package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSink struct {
	mu      sync.Mutex
	tracked map[int64]bool
	snaps   []domain.MatchSnapshot
	events  []domain.MatchEvent
}

func newFakeSink() *fakeSink { return &fakeSink{tracked: map[int64]bool{}} }

func (s *fakeSink) Ingest(snap domain.MatchSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	if snap.Status.Trackable() {
		s.tracked[snap.FixtureID] = true
	}
	return s.tracked[snap.FixtureID]
}

func (s *fakeSink) RecordEvent(ev domain.MatchEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.tracked[ev.FixtureID]
}

func (s *fakeSink) TrackedFixtures() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := range s.tracked {
		ids = append(ids, id)
	}
	return ids
}

type fakeSource struct {
	list    []domain.MatchSnapshot
	listErr error
	detail  map[int64]domain.MatchSnapshot
}

func (f *fakeSource) ListMatches(context.Context, time.Time, time.Time, []string) ([]domain.MatchSnapshot, error) {
	return f.list, f.listErr
}

func (f *fakeSource) GetMatch(_ context.Context, id int64) (domain.MatchSnapshot, error) {
	snap, ok := f.detail[id]
	if !ok {
		return domain.MatchSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type fakeCache struct {
	set         map[int64]domain.MatchSnapshot
	invalidated []int64
}

func (c *fakeCache) Set(_ context.Context, snap domain.MatchSnapshot) error {
	c.set[snap.FixtureID] = snap
	return nil
}

func (c *fakeCache) Get(_ context.Context, id int64) (domain.MatchSnapshot, error) {
	snap, ok := c.set[id]
	if !ok {
		return domain.MatchSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakeCache) List(context.Context) ([]domain.MatchSnapshot, error) { return nil, nil }

func (c *fakeCache) Invalidate(_ context.Context, id int64) error {
	delete(c.set, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestTimeline(t *testing.T) {
	tests := []struct {
		sec     int
		status  domain.MatchStatus
		period  domain.Period
		elapsed int
		cycle   int
	}{
		{0, domain.MatchStatusLive, domain.PeriodFirstHalf, 0, 0},
		{1200, domain.MatchStatusLive, domain.PeriodFirstHalf, 1200, 0},
		{2760, domain.MatchStatusLive, domain.PeriodFirstHalf, 2760, 0},
		{2900, domain.MatchStatusHalfTime, domain.PeriodHalfTime, 2700, 0},
		{3000, domain.MatchStatusLive, domain.PeriodSecondHalf, 2700, 0},
		{3000 + 46*60, domain.MatchStatusLive, domain.PeriodSecondHalf, 91 * 60, 0},
		{6000, domain.MatchStatusFinished, domain.PeriodFinished, 5400, 0},
		{6060 + 10, domain.MatchStatusLive, domain.PeriodFirstHalf, 10, 1},
	}
	for _, tt := range tests {
		got := Timeline(tt.sec)
		if got.Status != tt.status || got.Period != tt.period || got.Elapsed != tt.elapsed || got.Cycle != tt.cycle {
			t.Errorf("Timeline(%d) = %+v, want {%s %s %d %d}", tt.sec, got, tt.status, tt.period, tt.elapsed, tt.cycle)
		}
	}
}

func TestGoalDetector(t *testing.T) {
	g := NewGoalDetector()
	snap := domain.MatchSnapshot{FixtureID: 7, ElapsedMinutes: 20, HomeScore: 1}

	if evs := g.Observe(snap); len(evs) != 0 {
		t.Fatalf("baseline raised %d events", len(evs))
	}

	snap.HomeScore, snap.AwayScore, snap.ElapsedMinutes = 2, 2, 33
	evs := g.Observe(snap)
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	if evs[0].Team != domain.TeamHome || evs[1].Team != domain.TeamAway || evs[0].Minute != 33 {
		t.Errorf("events = %+v", evs)
	}

	snap.AwayScore = 1 // disallowed
	if evs := g.Observe(snap); len(evs) != 0 {
		t.Errorf("score decrease raised %d events", len(evs))
	}
	snap.AwayScore = 2
	if evs := g.Observe(snap); len(evs) != 1 {
		t.Errorf("goal after correction raised %d events, want 1", len(evs))
	}

	g.Forget(7)
	snap.HomeScore = 5
	if evs := g.Observe(snap); len(evs) != 0 {
		t.Errorf("forgotten fixture raised %d events", len(evs))
	}
}

func TestPollerListAndTracked(t *testing.T) {
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	src := &fakeSource{
		list: []domain.MatchSnapshot{
			{FixtureID: 1, Status: domain.MatchStatusLive, ElapsedMinutes: 10, Timestamp: now},
			{FixtureID: 2, Status: domain.MatchStatusScheduled, Timestamp: now},
			{FixtureID: 3, Status: domain.MatchStatusFinished, Timestamp: now},
		},
		detail: map[int64]domain.MatchSnapshot{
			1: {FixtureID: 1, Status: domain.MatchStatusLive, ElapsedMinutes: 11, HomeScore: 1, Timestamp: now.Add(15 * time.Second)},
		},
	}
	sink := newFakeSink()
	cache := &fakeCache{set: map[int64]domain.MatchSnapshot{}}
	p := NewPoller(src, sink, cache, nil, PollerConfig{}, discardLogger())
	p.now = func() time.Time { return now }

	ctx := context.Background()
	p.PollList(ctx)

	if got := sink.TrackedFixtures(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("tracked = %v, want [1]", got)
	}
	if _, ok := cache.set[2]; !ok {
		t.Error("scheduled fixture not cached")
	}
	if _, ok := cache.set[3]; ok || len(cache.invalidated) != 1 {
		t.Errorf("finished fixture cached; invalidated = %v", cache.invalidated)
	}

	p.PollTracked(ctx)
	if len(sink.events) != 1 || sink.events[0].Type != domain.EventGoal || sink.events[0].Minute != 11 {
		t.Errorf("events = %+v, want one goal at 11", sink.events)
	}
}

func TestPollerListErrorKeepsRunning(t *testing.T) {
	src := &fakeSource{listErr: errors.New("boom")}
	sink := newFakeSink()
	p := NewPoller(src, sink, nil, nil, PollerConfig{}, discardLogger())
	p.PollList(context.Background())
	if len(sink.snaps) != 0 {
		t.Errorf("ingested %d snapshots after error", len(sink.snaps))
	}
}

func TestDebugFeedStep(t *testing.T) {
	sink := newFakeSink()
	d := NewDebugFeed(sink, nil, DebugConfig{FixtureID: 999999, Speed: 60, EventInterval: time.Second, Seed: 1}, discardLogger())
	t0 := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

	for i := 0; i <= 20; i++ {
		d.Step(context.Background(), time.Duration(i)*time.Second, t0.Add(time.Duration(i)*time.Second))
	}
	if len(sink.snaps) != 21 {
		t.Fatalf("snapshots = %d, want 21", len(sink.snaps))
	}
	last := sink.snaps[len(sink.snaps)-1]
	if last.ElapsedSeconds != 1200 || last.ElapsedMinutes != 20 {
		t.Errorf("elapsed = %ds (%d'), want 1200s (20')", last.ElapsedSeconds, last.ElapsedMinutes)
	}
	if len(sink.events) != 20 {
		t.Errorf("events = %d, want one per interval (20)", len(sink.events))
	}
	goals := 0
	for _, ev := range sink.events {
		if ev.Type == domain.EventGoal {
			goals++
		}
	}
	if got := last.HomeScore + last.AwayScore; got != goals {
		t.Errorf("score total %d does not match %d goal events", got, goals)
	}
}

func TestDebugFeedRestartsScore(t *testing.T) {
	sink := newFakeSink()
	d := NewDebugFeed(sink, nil, DebugConfig{Speed: 1, Seed: 3}, discardLogger())
	d.score = domain.Score{Home: 3}
	d.cycle = 0
	d.nextEvent = 24 * time.Hour
	t0 := time.Now()
	d.Step(context.Background(), time.Duration(debugCycle+5)*time.Second, t0)

	last := sink.snaps[len(sink.snaps)-1]
	if last.HomeScore != 0 || last.ElapsedSeconds != 5 {
		t.Errorf("after restart score=%d elapsed=%d, want 0 and 5", last.HomeScore, last.ElapsedSeconds)
	}
}
