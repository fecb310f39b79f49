package feed

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// Debug timeline segment boundaries in match seconds.
const (
	debugFirstHalfEnd  = 45 * 60
	debugStoppage1End  = debugFirstHalfEnd + 3*60
	debugHalfTimeEnd   = debugStoppage1End + 2*60
	debugSecondHalfEnd = debugHalfTimeEnd + 45*60
	debugStoppage2End  = debugSecondHalfEnd + 4*60
	debugCycle         = debugStoppage2End + 2*60
)

// DebugPhase is the simulated match state at one instant.
type DebugPhase struct {
	Status  domain.MatchStatus
	Period  domain.Period
	Elapsed int // match clock in seconds
	Cycle   int // how many full matches have been played before this one
}

// Timeline maps seconds since the simulation started onto a repeating match:
// 45' first half, 3' stoppage, 2' half time, 45' second half, 4' stoppage and
// 2' at full time before kick-off again.
func Timeline(sec int) DebugPhase {
	if sec < 0 {
		sec = 0
	}
	ph := DebugPhase{Cycle: sec / debugCycle}
	s := sec % debugCycle

	switch {
	case s < debugStoppage1End:
		ph.Status, ph.Period, ph.Elapsed = domain.MatchStatusLive, domain.PeriodFirstHalf, s
	case s < debugHalfTimeEnd:
		ph.Status, ph.Period, ph.Elapsed = domain.MatchStatusHalfTime, domain.PeriodHalfTime, debugFirstHalfEnd
	case s < debugStoppage2End:
		ph.Status, ph.Period, ph.Elapsed = domain.MatchStatusLive, domain.PeriodSecondHalf, debugFirstHalfEnd+(s-debugHalfTimeEnd)
	default:
		ph.Status, ph.Period, ph.Elapsed = domain.MatchStatusFinished, domain.PeriodFinished, 90*60
	}
	return ph
}

// DebugConfig tunes the simulated fixture.
type DebugConfig struct {
	FixtureID int64
	// Speed is match seconds per wall second.
	Speed         float64
	EventInterval time.Duration
	Seed          uint64
}

// debugEventWeights is the relative chance of each simulated event.
var debugEventWeights = []struct {
	typ    domain.MatchEventType
	weight int
}{
	{domain.EventGoal, 8},
	{domain.EventCard, 10},
	{domain.EventCorner, 20},
	{domain.EventDanger, 32},
	{domain.EventSafe, 30},
}

// DebugFeed plays a simulated fixture into the sink with second-precision
// snapshots once per wall second and random match events. Cards are reported
// only as events so the engine does not count them twice.
type DebugFeed struct {
	cfg    DebugConfig
	sink   Sink
	cache  domain.MatchCache
	rng    *rand.Rand
	logger *slog.Logger

	cycle     int
	score     domain.Score
	nextEvent time.Duration
}

// NewDebugFeed creates a DebugFeed. cache may be nil.
func NewDebugFeed(sink Sink, cache domain.MatchCache, cfg DebugConfig, logger *slog.Logger) *DebugFeed {
	if cfg.FixtureID == 0 {
		cfg.FixtureID = 999999
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.EventInterval <= 0 {
		cfg.EventInterval = 5 * time.Second
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	return &DebugFeed{
		cfg:       cfg,
		sink:      sink,
		cache:     cache,
		rng:       rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.FixtureID))),
		logger:    logger.With(slog.String("component", "debug_feed"), slog.Int64("fixture_id", cfg.FixtureID)),
		cycle:     -1,
		nextEvent: cfg.EventInterval,
	}
}

// Run emits one observation per second until ctx is cancelled.
func (d *DebugFeed) Run(ctx context.Context) error {
	start := time.Now()
	d.logger.InfoContext(ctx, "debug feed started", slog.Float64("speed", d.cfg.Speed))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	d.Step(ctx, 0, start)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.Step(ctx, now.Sub(start), now)
		}
	}
}

// Step publishes the state at wall offset since the simulation started.
func (d *DebugFeed) Step(ctx context.Context, offset time.Duration, now time.Time) {
	ph := Timeline(int(offset.Seconds() * d.cfg.Speed))
	if ph.Cycle != d.cycle {
		if d.cycle >= 0 {
			d.logger.InfoContext(ctx, "debug match restarted", slog.Int("cycle", ph.Cycle))
		}
		d.cycle = ph.Cycle
		d.score = domain.Score{}
	}

	var events []domain.MatchEvent
	if ph.Status == domain.MatchStatusLive && offset >= d.nextEvent {
		d.nextEvent = offset + d.cfg.EventInterval
		ev := d.randomEvent(ph, now)
		if ev.Type == domain.EventGoal {
			if ev.Team == domain.TeamHome {
				d.score.Home++
			} else {
				d.score.Away++
			}
		}
		events = append(events, ev)
	}

	snap := domain.MatchSnapshot{
		FixtureID:      d.cfg.FixtureID,
		Status:         ph.Status,
		ElapsedMinutes: ph.Elapsed / 60,
		ElapsedSeconds: ph.Elapsed,
		Period:         ph.Period,
		HomeScore:      d.score.Home,
		AwayScore:      d.score.Away,
		HomeTeam:       "Debug FC",
		AwayTeam:       "Bug Hunters",
		Competition:    "DEBUG",
		KickoffAt:      now.Add(-time.Duration(float64(ph.Elapsed)/d.cfg.Speed) * time.Second),
		Timestamp:      now,
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, snap); err != nil {
			d.logger.DebugContext(ctx, "match cache update failed", slog.String("error", err.Error()))
		}
	}
	if !d.sink.Ingest(snap) {
		return
	}
	for _, ev := range events {
		d.sink.RecordEvent(ev)
	}
}

func (d *DebugFeed) randomEvent(ph DebugPhase, now time.Time) domain.MatchEvent {
	total := 0
	for _, w := range debugEventWeights {
		total += w.weight
	}
	pick := d.rng.IntN(total)
	typ := debugEventWeights[len(debugEventWeights)-1].typ
	for _, w := range debugEventWeights {
		if pick < w.weight {
			typ = w.typ
			break
		}
		pick -= w.weight
	}

	team := domain.TeamHome
	if d.rng.IntN(2) == 1 {
		team = domain.TeamAway
	}
	return domain.MatchEvent{
		FixtureID: d.cfg.FixtureID,
		Type:      typ,
		Team:      team,
		Minute:    ph.Elapsed / 60,
		At:        now,
	}
}
