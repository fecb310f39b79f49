package clock

import (
	"testing"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestTickAdvancesOnlyWhileLive(t *testing.T) {
	c := New(1, DefaultOptions())
	c.Sync(10, domain.MatchStatusLive, "", t0)

	for i := 0; i < 30; i++ {
		c.Tick(t0.Add(time.Duration(i) * time.Second))
	}
	if got := c.Snapshot().ElapsedSeconds; got != 630 {
		t.Fatalf("elapsed = %d, want 630", got)
	}

	c.Sync(10, domain.MatchStatusPaused, "", t0.Add(30*time.Second))
	before := c.Snapshot().ElapsedSeconds
	for i := 0; i < 10; i++ {
		c.Tick(t0.Add(40 * time.Second))
	}
	if got := c.Snapshot().ElapsedSeconds; got != before {
		t.Errorf("elapsed while paused = %d, want %d", got, before)
	}
}

func TestSyncAbsorbsSmallDrift(t *testing.T) {
	c := New(1, DefaultOptions())
	c.Sync(10, domain.MatchStatusLive, "", t0)
	for i := 0; i < 4; i++ {
		c.Tick(t0)
	}
	// local 604s vs feed 600s: within tolerance.
	if snapped := c.Sync(10, domain.MatchStatusLive, "", t0); snapped {
		t.Error("Sync snapped on 4s drift")
	}
	if got := c.Snapshot().ElapsedSeconds; got != 604 {
		t.Errorf("elapsed = %d, want 604", got)
	}
}

func TestSyncSnapsLargeDrift(t *testing.T) {
	c := New(1, DefaultOptions())
	c.Sync(10, domain.MatchStatusLive, "", t0)
	if snapped := c.Sync(12, domain.MatchStatusLive, "", t0); !snapped {
		t.Error("Sync did not snap on 120s drift")
	}
	if got := c.Snapshot().ElapsedSeconds; got != 720 {
		t.Errorf("elapsed = %d, want 720", got)
	}
}

func TestStoppageDetection(t *testing.T) {
	c := New(1, DefaultOptions())
	c.Sync(44, domain.MatchStatusLive, "", t0)
	for i := 0; i < 60; i++ {
		c.Tick(t0)
	}
	snap := c.Snapshot()
	if snap.Period != domain.PeriodStoppage1 {
		t.Fatalf("period = %s, want %s", snap.Period, domain.PeriodStoppage1)
	}

	c.Sync(47, domain.MatchStatusHalfTime, "", t0)
	c.Tick(t0)
	snap = c.Snapshot()
	if snap.Period != domain.PeriodHalfTime || snap.ElapsedSeconds != 2700 {
		t.Errorf("half time = (%s, %d), want (%s, 2700)", snap.Period, snap.ElapsedSeconds, domain.PeriodHalfTime)
	}

	c.Sync(46, domain.MatchStatusLive, "", t0)
	if got := c.Snapshot().Period; got != domain.PeriodSecondHalf {
		t.Errorf("period after half time = %s, want %s", got, domain.PeriodSecondHalf)
	}

	c.Sync(90, domain.MatchStatusLive, "", t0)
	c.Tick(t0)
	if got := c.Snapshot().Period; got != domain.PeriodStoppage2 {
		t.Errorf("period at 90 = %s, want %s", got, domain.PeriodStoppage2)
	}
}

func TestFirstObservationInfersHalf(t *testing.T) {
	tests := []struct {
		minute int
		period domain.Period
		want   domain.Period
	}{
		{minute: 30, want: domain.PeriodFirstHalf},
		{minute: 45, want: domain.PeriodStoppage1},
		{minute: 60, want: domain.PeriodSecondHalf},
		{minute: 47, period: domain.PeriodFirstHalf, want: domain.PeriodStoppage1},
		{minute: 92, want: domain.PeriodStoppage2},
	}
	for _, tt := range tests {
		c := New(1, DefaultOptions())
		c.Sync(tt.minute, domain.MatchStatusLive, tt.period, t0)
		if got := c.Snapshot().Period; got != tt.want {
			t.Errorf("minute %d period %q: got %s, want %s", tt.minute, tt.period, got, tt.want)
		}
	}
}

func TestFinishedFreezes(t *testing.T) {
	c := New(1, DefaultOptions())
	c.Sync(93, domain.MatchStatusFinished, "", t0)
	c.Tick(t0)
	c.Tick(t0)
	snap := c.Snapshot()
	if !snap.Finished() {
		t.Fatalf("snapshot not finished: %+v", snap)
	}
	// A late LIVE observation must not resurrect the match.
	c.Sync(93, domain.MatchStatusLive, "", t0)
	if c.Snapshot().Status != domain.MatchStatusFinished {
		t.Error("finished clock resumed after late sync")
	}
}

func TestStaleFlag(t *testing.T) {
	opts := DefaultOptions()
	opts.StaleTimeout = 10 * time.Second
	c := New(1, opts)
	c.Sync(20, domain.MatchStatusLive, "", t0)

	c.Tick(t0.Add(5 * time.Second))
	if c.Snapshot().Stale {
		t.Fatal("stale raised before timeout")
	}
	c.Tick(t0.Add(11 * time.Second))
	snap := c.Snapshot()
	if !snap.Stale {
		t.Fatal("stale not raised after timeout")
	}
	if snap.ElapsedSeconds != 1202 {
		t.Errorf("elapsed = %d, want 1202 (ticking continues while stale)", snap.ElapsedSeconds)
	}
	c.Sync(20, domain.MatchStatusLive, "", t0.Add(12*time.Second))
	if c.Snapshot().Stale {
		t.Error("stale not cleared by sync")
	}
}

func TestGameOverGuard(t *testing.T) {
	c := New(1, DefaultOptions())
	c.Sync(119, domain.MatchStatusLive, domain.PeriodSecondHalf, t0)
	for i := 0; i < 60; i++ {
		c.Tick(t0)
	}
	snap := c.Snapshot()
	if snap.Status != domain.MatchStatusFinished || snap.Period != domain.PeriodFinished {
		t.Errorf("at 120' = (%s, %s), want FINISHED", snap.Status, snap.Period)
	}
}

func TestSyncSecondsKeepsSubMinutePrecision(t *testing.T) {
	c := New(1, DefaultOptions())
	c.SyncSeconds(630, domain.MatchStatusLive, domain.PeriodFirstHalf, t0)
	c.Tick(t0)
	if snapped := c.SyncSeconds(631, domain.MatchStatusLive, domain.PeriodFirstHalf, t0); snapped {
		t.Error("SyncSeconds snapped on an in-step reading")
	}
	if got := c.Snapshot().ElapsedSeconds; got != 631 {
		t.Errorf("elapsed = %d, want 631", got)
	}
}
