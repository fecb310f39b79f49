// Package clock turns intermittent feed observations into a continuous
// per-match clock that advances one second per scheduler tick.
package clock

import (
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

const (
	halfSeconds     = 45 * 60
	fullTimeSeconds = 90 * 60
)

// Options tunes drift handling and staleness.
type Options struct {
	// DriftTolerance is the largest disagreement with the feed absorbed by
	// local ticking. Larger drift snaps the clock to the feed.
	DriftTolerance time.Duration
	// StaleTimeout raises the stale flag when no sync arrived for this long.
	StaleTimeout time.Duration
	// GameOverMinute forces FINISHED when the clock reaches it.
	GameOverMinute int
}

// DefaultOptions mirrors the engine defaults.
func DefaultOptions() Options {
	return Options{
		DriftTolerance: 5 * time.Second,
		StaleTimeout:   90 * time.Second,
		GameOverMinute: 120,
	}
}

// Clock is the time source of a single match. It is not safe for concurrent
// use; the engine serializes access under the match lock.
type Clock struct {
	opts Options

	fixtureID    int64
	elapsed      int
	status       domain.MatchStatus
	period       domain.Period
	secondHalf   bool
	seenHalfTime bool
	synced       bool
	lastSync     time.Time
	stale        bool
}

// New creates a clock that has not yet been synced.
func New(fixtureID int64, opts Options) *Clock {
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = DefaultOptions().DriftTolerance
	}
	if opts.GameOverMinute <= 0 {
		opts.GameOverMinute = DefaultOptions().GameOverMinute
	}
	return &Clock{
		opts:      opts,
		fixtureID: fixtureID,
		status:    domain.MatchStatusScheduled,
		period:    domain.PeriodFirstHalf,
	}
}

// Sync applies a feed observation. It reports whether elapsed time was
// snapped to the feed because drift exceeded the tolerance.
func (c *Clock) Sync(elapsedMinutes int, status domain.MatchStatus, period domain.Period, at time.Time) bool {
	return c.SyncSeconds(elapsedMinutes*60, status, period, at)
}

// SyncSeconds is Sync for feeds reporting second precision.
func (c *Clock) SyncSeconds(elapsedSeconds int, status domain.MatchStatus, period domain.Period, at time.Time) bool {
	c.lastSync = at
	c.stale = false

	if c.status == domain.MatchStatusFinished {
		return false
	}
	c.status = status

	switch status {
	case domain.MatchStatusFinished:
		c.period = domain.PeriodFinished
		c.synced = true
		return false
	case domain.MatchStatusHalfTime:
		return c.enterHalfTime()
	}

	switch period {
	case domain.PeriodFirstHalf, domain.PeriodStoppage1:
		c.secondHalf = false
	case domain.PeriodSecondHalf, domain.PeriodStoppage2:
		c.secondHalf = true
	case domain.PeriodHalfTime:
		return c.enterHalfTime()
	case domain.PeriodFinished:
		c.status = domain.MatchStatusFinished
		c.period = domain.PeriodFinished
		return false
	default:
		if c.seenHalfTime {
			c.secondHalf = true
		} else if !c.synced && elapsedSeconds >= 46*60 {
			c.secondHalf = true
		}
	}

	snapped := false
	target := elapsedSeconds
	if !c.synced || absInt(target-c.elapsed) > int(c.opts.DriftTolerance/time.Second) {
		snapped = c.synced && target != c.elapsed
		c.elapsed = target
	}
	c.synced = true
	c.period = c.derivePeriod()
	return snapped
}

func (c *Clock) enterHalfTime() bool {
	c.status = domain.MatchStatusHalfTime
	c.seenHalfTime = true
	c.secondHalf = true
	c.period = domain.PeriodHalfTime
	snapped := c.synced && c.elapsed != halfSeconds
	c.elapsed = halfSeconds
	c.synced = true
	return snapped
}

// Tick advances the clock by one second while the match is live. The stale
// flag is raised when the feed has been silent past the timeout, but ticking
// continues.
func (c *Clock) Tick(now time.Time) {
	if c.status == domain.MatchStatusFinished {
		c.period = domain.PeriodFinished
		return
	}
	switch c.status {
	case domain.MatchStatusLive:
		c.elapsed++
	case domain.MatchStatusHalfTime:
		c.elapsed = halfSeconds
	}
	c.period = c.derivePeriod()

	if c.opts.StaleTimeout > 0 && !c.lastSync.IsZero() && now.Sub(c.lastSync) > c.opts.StaleTimeout {
		c.stale = true
	}
	if c.elapsed >= c.opts.GameOverMinute*60 {
		c.status = domain.MatchStatusFinished
		c.period = domain.PeriodFinished
	}
}

func (c *Clock) derivePeriod() domain.Period {
	switch c.status {
	case domain.MatchStatusFinished:
		return domain.PeriodFinished
	case domain.MatchStatusHalfTime:
		return domain.PeriodHalfTime
	}
	if c.secondHalf {
		if c.elapsed >= fullTimeSeconds {
			return domain.PeriodStoppage2
		}
		return domain.PeriodSecondHalf
	}
	if c.elapsed >= halfSeconds {
		return domain.PeriodStoppage1
	}
	return domain.PeriodFirstHalf
}

// Snapshot returns the current clock state.
func (c *Clock) Snapshot() domain.MatchClock {
	return domain.MatchClock{
		FixtureID:          c.fixtureID,
		ElapsedSeconds:     c.elapsed,
		Period:             c.period,
		Status:             c.status,
		LastExternalSyncAt: c.lastSync,
		Stale:              c.stale,
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
