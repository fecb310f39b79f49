package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/metrics"
)

// PollerConfig tunes the provider polling cadence.
type PollerConfig struct {
	ListInterval  time.Duration
	MatchInterval time.Duration
	LookaheadDays int
	Competitions  []string
}

// Poller keeps the match cache and the engine current. The list poll covers
// every fixture from today to the lookahead horizon; the detail poll follows
// each tracked fixture so one that drops out of the list still reaches FINISHED.
type Poller struct {
	src     Source
	sink    Sink
	cache   domain.MatchCache
	goals   *GoalDetector
	metrics *metrics.Metrics
	cfg     PollerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPoller creates a Poller. cache and m may be nil.
func NewPoller(src Source, sink Sink, cache domain.MatchCache, m *metrics.Metrics, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.ListInterval <= 0 {
		cfg.ListInterval = 30 * time.Second
	}
	if cfg.MatchInterval <= 0 {
		cfg.MatchInterval = 15 * time.Second
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 5
	}
	return &Poller{
		src:     src,
		sink:    sink,
		cache:   cache,
		goals:   NewGoalDetector(),
		metrics: m,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "feed_poller")),
		now:     time.Now,
	}
}

// Run polls until ctx is cancelled. Provider errors are logged and retried on
// the next interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "feed poller started",
		slog.Duration("list_interval", p.cfg.ListInterval),
		slog.Duration("match_interval", p.cfg.MatchInterval),
		slog.Any("competitions", p.cfg.Competitions),
	)

	p.PollList(ctx)
	listTicker := time.NewTicker(p.cfg.ListInterval)
	defer listTicker.Stop()
	matchTicker := time.NewTicker(p.cfg.MatchInterval)
	defer matchTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feed poller stopped")
			return ctx.Err()
		case <-listTicker.C:
			p.PollList(ctx)
		case <-matchTicker.C:
			p.PollTracked(ctx)
		}
	}
}

// PollList fetches the fixture list, refreshes the cache and hands every
// snapshot to the engine, which starts the live ones.
func (p *Poller) PollList(ctx context.Context) {
	from := p.now()
	snaps, err := p.src.ListMatches(ctx, from, from.AddDate(0, 0, p.cfg.LookaheadDays), p.cfg.Competitions)
	p.metrics.FeedPoll("list", err)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WarnContext(ctx, "list poll failed", slog.String("error", err.Error()))
		}
		return
	}

	live := 0
	for _, snap := range snaps {
		if p.observe(ctx, snap) {
			live++
		}
	}
	p.logger.DebugContext(ctx, "list poll complete",
		slog.Int("fixtures", len(snaps)),
		slog.Int("tracked", live),
	)
}

// PollTracked refreshes every fixture the engine is tracking.
func (p *Poller) PollTracked(ctx context.Context) {
	for _, id := range p.sink.TrackedFixtures() {
		if ctx.Err() != nil {
			return
		}
		snap, err := p.src.GetMatch(ctx, id)
		p.metrics.FeedPoll("match", err)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, domain.ErrRateLimited) {
				level = slog.LevelDebug
			}
			p.logger.Log(ctx, level, "match poll failed",
				slog.Int64("fixture_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.observe(ctx, snap)
	}
}

// observe caches the snapshot, ingests it and forwards derived goal events.
// It reports whether the engine tracks the fixture afterwards.
func (p *Poller) observe(ctx context.Context, snap domain.MatchSnapshot) bool {
	if p.cache != nil {
		var err error
		if snap.Status == domain.MatchStatusFinished {
			err = p.cache.Invalidate(ctx, snap.FixtureID)
		} else {
			err = p.cache.Set(ctx, snap)
		}
		if err != nil {
			p.logger.WarnContext(ctx, "match cache update failed",
				slog.Int64("fixture_id", snap.FixtureID),
				slog.String("error", err.Error()),
			)
		}
	}

	tracked := p.sink.Ingest(snap)
	if !tracked {
		p.goals.Forget(snap.FixtureID)
		return false
	}
	for _, ev := range p.goals.Observe(snap) {
		p.logger.InfoContext(ctx, "goal detected",
			slog.Int64("fixture_id", ev.FixtureID),
			slog.String("team", string(ev.Team)),
			slog.Int("minute", ev.Minute),
		)
		p.sink.RecordEvent(ev)
	}
	if snap.Status == domain.MatchStatusFinished {
		p.goals.Forget(snap.FixtureID)
	}
	return true
}
