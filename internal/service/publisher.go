package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/engine"
	"github.com/alanyoungcy/flashbet/internal/metrics"
	"github.com/alanyoungcy/flashbet/internal/notify"
)

// PublisherConfig tunes the tick publisher.
type PublisherConfig struct {
	// Buffer is the number of tick results queued before the market views of
	// new ones are dropped. Settlements, stale and eviction notices and match
	// failures are never dropped.
	Buffer int
	// BigWinPayout triggers an operator notification when a payout reaches it.
	// Zero disables the alert.
	BigWinPayout decimal.Decimal
}

// Status summarizes the most recent tick for the status endpoint and channel.
type Status struct {
	LastTick     time.Time `json:"last_tick"`
	TickMillis   float64   `json:"tick_ms"`
	Tracked      int       `json:"tracked"`
	Stale        int       `json:"stale"`
	Failures     int       `json:"failures"`
	SettledTotal int64     `json:"settled_total"`
	Dropped      int64     `json:"dropped"`
}

// Publisher fans tick results out to the signal bus, persistence, audit,
// metrics and notifications. Emit never blocks the engine; the I/O happens on
// the Run goroutine.
type Publisher struct {
	bus      domain.SignalBus
	settled  domain.SettledBetStore
	audit    domain.AuditStore
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	cfg      PublisherConfig
	logger   *slog.Logger

	ch chan engine.TickResult

	// backlog holds the view-less remainder of results that did not fit in
	// ch. It is unbounded; wake signals Run that it is non-empty.
	backlogMu sync.Mutex
	backlog   []engine.TickResult
	wake      chan struct{}

	mu     sync.RWMutex
	status Status
}

var _ engine.Emitter = (*Publisher)(nil)

// NewPublisher creates a Publisher. Every collaborator may be nil.
func NewPublisher(
	bus domain.SignalBus,
	settled domain.SettledBetStore,
	auditStore domain.AuditStore,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	cfg PublisherConfig,
	logger *slog.Logger,
) *Publisher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Publisher{
		bus:      bus,
		settled:  settled,
		audit:    auditStore,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "publisher")),
		ch:       make(chan engine.TickResult, cfg.Buffer),
		wake:     make(chan struct{}, 1),
	}
}

// Emit queues res. When the queue is full the market views are dropped and the
// remaining events go to the backlog.
func (p *Publisher) Emit(res engine.TickResult) {
	select {
	case p.ch <- res:
		return
	default:
	}

	p.metrics.Dropped()
	p.mu.Lock()
	p.status.Dropped++
	p.mu.Unlock()

	if !hasEvents(res) {
		p.logger.Warn("tick views dropped", slog.Time("at", res.At))
		return
	}
	p.backlogMu.Lock()
	p.backlog = append(p.backlog, engine.TickResult{
		At:       res.At,
		Settled:  res.Settled,
		Evicted:  res.Evicted,
		Stale:    res.Stale,
		Failures: res.Failures,
	})
	n := len(p.backlog)
	p.backlogMu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	p.logger.Warn("tick views dropped, events deferred",
		slog.Time("at", res.At),
		slog.Int("settled", len(res.Settled)),
		slog.Int("backlog", n),
	)
}

func hasEvents(res engine.TickResult) bool {
	return len(res.Settled) > 0 || len(res.Evicted) > 0 || len(res.Stale) > 0 || len(res.Failures) > 0
}

func (p *Publisher) takeBacklog() []engine.TickResult {
	p.backlogMu.Lock()
	defer p.backlogMu.Unlock()
	out := p.backlog
	p.backlog = nil
	return out
}

// Status returns the summary of the last handled tick.
func (p *Publisher) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Run drains the queue and the backlog until ctx is cancelled. Events still
// pending at cancellation are flushed with a short grace period.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "publisher started", slog.Int("buffer", cap(p.ch)))
	for {
		select {
		case <-ctx.Done():
			p.flush(ctx)
			return ctx.Err()
		case res := <-p.ch:
			p.Handle(ctx, res)
		case <-p.wake:
			for _, res := range p.takeBacklog() {
				p.handleEvents(ctx, res)
			}
		}
	}
}

func (p *Publisher) flush(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
	defer cancel()
	for drained := false; !drained; {
		select {
		case res := <-p.ch:
			p.handleEvents(ctx, res)
		default:
			drained = true
		}
	}
	for _, res := range p.takeBacklog() {
		p.handleEvents(ctx, res)
	}
}

// Handle processes one tick result synchronously.
func (p *Publisher) Handle(ctx context.Context, res engine.TickResult) {
	stale := 0
	for _, v := range res.Views {
		if v.Clock.Stale {
			stale++
		}
		publish(ctx, p.bus, p.logger, domain.MarketsChannel(v.FixtureID), EventMarkets, v, res.At)
	}

	for _, c := range res.Changes {
		p.metrics.MarketOpened(len(c.Changes.Opened))
		for _, m := range c.Changes.Resolved {
			p.metrics.MarketResolved(string(m.Status))
		}
	}

	p.handleEvents(ctx, res)

	p.metrics.ObserveTick(res.Duration, len(res.Views), stale, len(res.Failures))

	p.mu.Lock()
	p.status.LastTick = res.At
	p.status.TickMillis = float64(res.Duration.Microseconds()) / 1000
	p.status.Tracked = len(res.Views) + len(res.Failures)
	p.status.Stale = stale
	p.status.Failures = len(res.Failures)
	status := p.status
	p.mu.Unlock()

	publish(ctx, p.bus, p.logger, domain.ChannelStatus, EventStatus, status, res.At)
}

// handleEvents delivers the parts of a result that must not be lost.
func (p *Publisher) handleEvents(ctx context.Context, res engine.TickResult) {
	for _, s := range res.Settled {
		p.settle(ctx, s, res.At)
	}
	if n := len(res.Settled); n > 0 {
		p.mu.Lock()
		p.status.SettledTotal += int64(n)
		p.mu.Unlock()
	}

	for _, id := range res.Stale {
		p.feedStale(ctx, id)
	}

	for _, f := range res.Failures {
		p.logger.ErrorContext(ctx, "match tick failure",
			slog.Int64("fixture_id", f.FixtureID),
			slog.String("error", f.Err.Error()),
		)
		p.notify(ctx, notify.EventError, "Match tick failed",
			fmt.Sprintf("fixture %d: %v", f.FixtureID, f.Err))
	}

	for _, id := range res.Evicted {
		publish(ctx, p.bus, p.logger, domain.ChannelMatches, EventMatchEvicted,
			map[string]int64{"fixture_id": id}, res.At)
	}
}

func (p *Publisher) settle(ctx context.Context, s domain.BetSettled, at time.Time) {
	payout, _ := s.Payout.Float64()
	p.metrics.BetSettled(string(s.Bet.Status), payout)

	if payload := publish(ctx, p.bus, p.logger, domain.BetsChannel(s.Bet.UserID), EventBetSettled, s, at); payload != nil && p.bus != nil {
		if err := p.bus.StreamAppend(ctx, SettlementStream, payload); err != nil {
			p.logger.WarnContext(ctx, "settlement stream append failed",
				slog.String("bet_id", s.Bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.settled != nil {
		if err := p.settled.Insert(ctx, s); err != nil {
			p.logger.ErrorContext(ctx, "persist settled bet failed",
				slog.String("bet_id", s.Bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	audit(ctx, p.audit, p.logger, domain.AuditBetSettled, map[string]any{
		"bet_id":      s.Bet.ID,
		"user_id":     s.Bet.UserID,
		"match_id":    s.Bet.MatchID,
		"market_id":   s.Bet.MarketID,
		"status":      s.Bet.Status,
		"payout":      s.Payout.String(),
		"balance":     s.NewBalance.String(),
		"final_score": s.FinalScore,
	})

	if p.cfg.BigWinPayout.IsPositive() && s.Payout.GreaterThanOrEqual(p.cfg.BigWinPayout) {
		p.notify(ctx, notify.EventBigWin, "Big win",
			fmt.Sprintf("user %s won %s on %s (match %d, odds %s)",
				s.Bet.UserID, s.Payout.StringFixed(2), s.Bet.MarketID, s.Bet.MatchID, s.Bet.Odds))
	}
}

func (p *Publisher) feedStale(ctx context.Context, fixtureID int64) {
	audit(ctx, p.audit, p.logger, domain.AuditFeedStale, map[string]any{"fixture_id": fixtureID})
	p.notify(ctx, notify.EventFeedStale, "Feed stale",
		fmt.Sprintf("no feed update for fixture %d, clock running locally", fixtureID))
}

func (p *Publisher) notify(ctx context.Context, event, title, message string) {
	if !p.notifier.Enabled(event) {
		return
	}
	if err := p.notifier.Notify(ctx, event, title, message); err != nil {
		p.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
