// Package engine drives every tracked match once per tick: clock, markets,
// settlement, eviction and emission, in that order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/flashbet/internal/clock"
	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/ledger"
	"github.com/alanyoungcy/flashbet/internal/lifecycle"
	"github.com/alanyoungcy/flashbet/internal/odds"
)

// Emitter receives the outcome of every tick. Implementations must not block.
type Emitter interface {
	Emit(res TickResult)
}

// BookFactory builds the market book of a newly tracked fixture.
type BookFactory func(fixtureID int64) lifecycle.Book

// MarketChange is a market transition tagged with its fixture.
type MarketChange struct {
	FixtureID int64
	Changes   lifecycle.Changes
}

// MatchFailure records a match whose tick was aborted.
type MatchFailure struct {
	FixtureID int64
	Err       error
}

// TickResult is the state produced by one tick.
type TickResult struct {
	At       time.Time
	Duration time.Duration
	Views    []domain.MarketsView
	Changes  []MarketChange
	Settled  []domain.BetSettled
	Evicted  []int64
	Stale    []int64
	Resynced []int64
	Failures []MatchFailure
}

// Options configure the engine.
type Options struct {
	TickInterval time.Duration
	Workers      int
	MarketMode   string
	Clock        clock.Options
	Book         lifecycle.Options
}

// Option customizes an Engine.
type Option func(*Engine)

// WithBookFactory overrides how books are built.
func WithBookFactory(f BookFactory) Option {
	return func(e *Engine) { e.newBook = f }
}

// WithEmitter sets the tick observer.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// Engine owns all per-match state. It is the only writer of match state and
// is safe for concurrent use by feeds and transports.
type Engine struct {
	opts    Options
	ledger  *ledger.Ledger
	emitter Emitter
	newBook BookFactory
	logger  *slog.Logger

	mu      sync.RWMutex
	matches map[int64]*matchState
	muted   map[int64]struct{}

	lastTick time.Time
}

// New creates an engine settling bets on l.
func New(l *ledger.Ledger, opts Options, logger *slog.Logger, options ...Option) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.MarketMode == "" {
		opts.MarketMode = lifecycle.ModeFlash
	}
	e := &Engine{
		opts:    opts,
		ledger:  l,
		logger:  logger.With(slog.String("component", "engine")),
		matches: make(map[int64]*matchState),
		muted:   make(map[int64]struct{}),
	}
	e.newBook = e.defaultBook
	for _, o := range options {
		o(e)
	}
	return e
}

func (e *Engine) defaultBook(fixtureID int64) lifecycle.Book {
	if e.opts.MarketMode == lifecycle.ModeLegacy {
		return lifecycle.NewLegacyBook(e.opts.Book)
	}
	return lifecycle.NewFlashBook(odds.NewSeeded(uint64(fixtureID)^uint64(time.Now().UnixNano())), e.opts.Book)
}

// Ledger exposes the bet ledger for read-only queries.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Mode returns the configured market mode.
func (e *Engine) Mode() string { return e.opts.MarketMode }

// Ingest hands a feed snapshot to the match's inbox. Untracked fixtures start
// tracking when the snapshot shows live play, unless tracking was stopped
// explicitly. It reports whether the fixture is tracked.
func (e *Engine) Ingest(snap domain.MatchSnapshot) bool {
	e.mu.Lock()
	st, ok := e.matches[snap.FixtureID]
	if !ok {
		_, muted := e.muted[snap.FixtureID]
		if muted || !snap.Status.Trackable() {
			e.mu.Unlock()
			return false
		}
		st = e.start(snap)
	}
	e.mu.Unlock()
	st.offer(snap)
	return true
}

// Track starts or resumes tracking on explicit request.
func (e *Engine) Track(snap domain.MatchSnapshot) error {
	if snap.Status == domain.MatchStatusFinished {
		return fmt.Errorf("engine: track %d: %w", snap.FixtureID, domain.ErrMatchFinished)
	}
	if !snap.Status.Trackable() {
		return fmt.Errorf("engine: track %d: status %s: %w", snap.FixtureID, snap.Status, domain.ErrMatchNotTracked)
	}
	e.mu.Lock()
	delete(e.muted, snap.FixtureID)
	st, ok := e.matches[snap.FixtureID]
	if !ok {
		st = e.start(snap)
	}
	e.mu.Unlock()
	st.requestRemoval(false)
	st.offer(snap)
	return nil
}

// start registers a new match. Callers hold e.mu.
func (e *Engine) start(snap domain.MatchSnapshot) *matchState {
	st := &matchState{
		fixtureID: snap.FixtureID,
		clock:     clock.New(snap.FixtureID, e.opts.Clock),
		book:      e.newBook(snap.FixtureID),
		info:      snap,
	}
	e.matches[snap.FixtureID] = st
	e.logger.Info("match tracked",
		slog.Int64("fixture_id", snap.FixtureID),
		slog.String("home", snap.HomeTeam),
		slog.String("away", snap.AwayTeam),
		slog.String("status", string(snap.Status)),
	)
	return st
}

// RecordEvent queues a discrete match event for the next tick.
func (e *Engine) RecordEvent(ev domain.MatchEvent) bool {
	e.mu.RLock()
	st, ok := e.matches[ev.FixtureID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	st.push(ev)
	return true
}

// StopTracking marks the match for removal at the next tick boundary. The
// match stays until its pending bets are settled.
func (e *Engine) StopTracking(fixtureID int64) error {
	e.mu.Lock()
	st, ok := e.matches[fixtureID]
	if ok {
		e.muted[fixtureID] = struct{}{}
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: stop tracking %d: %w", fixtureID, domain.ErrMatchNotTracked)
	}
	st.requestRemoval(true)
	return nil
}

// PlaceBet validates and books a bet against the market's current state.
// The match lock is held across validation and the ledger debit, so the
// quote cannot change underneath the bet.
func (e *Engine) PlaceBet(req domain.PlaceBetRequest, now time.Time) (domain.BetAccepted, error) {
	e.mu.RLock()
	st, ok := e.matches[req.MatchID]
	e.mu.RUnlock()
	if !ok {
		return e.ledger.PlaceBet(req, nil, now)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	m, found := st.book.Market(req.MarketID)
	if !found {
		return e.ledger.PlaceBet(req, nil, now)
	}
	q := &domain.Quote{Market: m, Clock: st.clock.Snapshot(), Score: st.score, Cards: st.cards}
	if st.removalRequested() {
		q.Clock.Status = domain.MatchStatusPaused
	}
	return e.ledger.PlaceBet(req, q, now)
}

// Markets returns the current markets of a tracked match.
func (e *Engine) Markets(fixtureID int64) (domain.MarketsView, error) {
	e.mu.RLock()
	st, ok := e.matches[fixtureID]
	e.mu.RUnlock()
	if !ok {
		return domain.MarketsView{}, fmt.Errorf("engine: markets %d: %w", fixtureID, domain.ErrMatchNotTracked)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.marketsView(), nil
}

// Matches lists every tracked match ordered by fixture id.
func (e *Engine) Matches() []domain.MatchView {
	states := e.states()
	out := make([]domain.MatchView, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.view(!st.removalRequested()))
		st.mu.Unlock()
	}
	return out
}

// TrackedFixtures returns the ids of all matches the engine holds.
func (e *Engine) TrackedFixtures() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]int64, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LastTick returns when the engine last completed a tick.
func (e *Engine) LastTick() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastTick
}

func (e *Engine) states() []*matchState {
	e.mu.RLock()
	out := make([]*matchState, 0, len(e.matches))
	for _, st := range e.matches {
		out = append(out, st)
	}
	e.mu.RUnlock()
	slices.SortFunc(out, func(a, b *matchState) int {
		switch {
		case a.fixtureID < b.fixtureID:
			return -1
		case a.fixtureID > b.fixtureID:
			return 1
		}
		return 0
	})
	return out
}

// Run ticks at the configured interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()
	e.logger.InfoContext(ctx, "engine started",
		slog.String("mode", e.opts.MarketMode),
		slog.Duration("interval", e.opts.TickInterval),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			e.Tick(ctx, now.UTC())
		}
	}
}

type matchResult struct {
	view     domain.MarketsView
	settle   domain.SettlementSnapshot
	changes  lifecycle.Changes
	finished bool
	remove   bool
	stale    bool
	resynced bool
	err      error
}

// Tick runs one pass over every tracked match.
func (e *Engine) Tick(ctx context.Context, now time.Time) TickResult {
	started := time.Now()
	states := e.states()
	results := make([]matchResult, len(states))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, st := range states {
		g.Go(func() error {
			results[i] = e.advance(st, now)
			return nil
		})
	}
	_ = g.Wait()

	res := TickResult{At: now}
	snapshots := make(map[int64]domain.SettlementSnapshot, len(states))
	for i, st := range states {
		r := results[i]
		if r.err != nil {
			res.Failures = append(res.Failures, MatchFailure{FixtureID: st.fixtureID, Err: r.err})
			e.logger.ErrorContext(ctx, "match tick failed",
				slog.Int64("fixture_id", st.fixtureID),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		snapshots[st.fixtureID] = r.settle
		res.Views = append(res.Views, r.view)
		if !r.changes.Empty() {
			res.Changes = append(res.Changes, MarketChange{FixtureID: st.fixtureID, Changes: r.changes})
		}
		if r.stale {
			res.Stale = append(res.Stale, st.fixtureID)
			e.logger.WarnContext(ctx, "match feed stale", slog.Int64("fixture_id", st.fixtureID))
		}
		if r.resynced {
			res.Resynced = append(res.Resynced, st.fixtureID)
			e.logger.DebugContext(ctx, "match clock resynced",
				slog.Int64("fixture_id", st.fixtureID),
				slog.Int("elapsed_seconds", r.settle.Clock.ElapsedSeconds),
			)
		}
	}

	res.Settled = e.ledger.ResolveBets(snapshots, now)
	for _, s := range res.Settled {
		e.logger.InfoContext(ctx, "bet settled",
			slog.String("bet_id", s.Bet.ID),
			slog.String("user_id", s.Bet.UserID),
			slog.Int64("fixture_id", s.Bet.MatchID),
			slog.String("status", string(s.Bet.Status)),
			slog.String("payout", s.Payout.String()),
		)
	}

	e.mu.Lock()
	for i, st := range states {
		r := results[i]
		if r.err != nil || !(r.finished || r.remove) {
			continue
		}
		if e.ledger.HasPendingExposure(st.fixtureID) {
			continue
		}
		delete(e.matches, st.fixtureID)
		res.Evicted = append(res.Evicted, st.fixtureID)
	}
	e.lastTick = now
	e.mu.Unlock()
	for _, id := range res.Evicted {
		e.logger.InfoContext(ctx, "match evicted", slog.Int64("fixture_id", id))
	}

	res.Duration = time.Since(started)
	if e.emitter != nil {
		e.emitter.Emit(res)
	}
	return res
}

var errPanic = errors.New("panic during match tick")

// advance runs the per-match phase under the match lock. A panic is
// contained to this match.
func (e *Engine) advance(st *matchState, now time.Time) (res matchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = matchResult{err: fmt.Errorf("engine: match %d: %w: %v", st.fixtureID, errPanic, r)}
		}
	}()

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, events, remove := st.drain()
	if snap != nil {
		res.resynced = st.clock.SyncSeconds(snap.Elapsed(), snap.Status, snap.Period, snap.Timestamp)
		st.score = snap.Score()
		st.cards = max(st.cards, snap.Cards())
		st.info = *snap
	}
	for _, ev := range events {
		if ev.Type.IsCard() {
			st.cards++
		}
	}

	wasStale := st.clock.Snapshot().Stale
	st.clock.Tick(now)
	c := st.clock.Snapshot()

	res.changes = st.book.Advance(lifecycle.Input{
		Now:    now,
		Clock:  c,
		Score:  st.score,
		Cards:  st.cards,
		Events: events,
	})
	res.view = st.marketsView()
	res.settle = domain.SettlementSnapshot{Clock: c, Score: st.score, Cards: st.cards}
	res.finished = c.Finished()
	res.remove = remove
	res.stale = c.Stale && !wasStale
	return res
}
