package engine

import (
	"sync"

	"github.com/alanyoungcy/flashbet/internal/clock"
	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/lifecycle"
)

// matchState is everything the engine owns for one fixture. mu serializes
// the tick and bet placement; inboxMu guards only the hand-off fields so feed
// producers never wait on a tick in progress.
type matchState struct {
	fixtureID int64

	mu    sync.Mutex
	clock *clock.Clock
	book  lifecycle.Book
	score domain.Score
	cards int
	info  domain.MatchSnapshot

	inboxMu         sync.Mutex
	latest          *domain.MatchSnapshot
	events          []domain.MatchEvent
	removeRequested bool
}

func (s *matchState) offer(snap domain.MatchSnapshot) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	if s.latest != nil && snap.Timestamp.Before(s.latest.Timestamp) {
		return
	}
	s.latest = &snap
}

func (s *matchState) push(ev domain.MatchEvent) {
	s.inboxMu.Lock()
	s.events = append(s.events, ev)
	s.inboxMu.Unlock()
}

func (s *matchState) requestRemoval(v bool) {
	s.inboxMu.Lock()
	s.removeRequested = v
	s.inboxMu.Unlock()
}

func (s *matchState) drain() (*domain.MatchSnapshot, []domain.MatchEvent, bool) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	snap, events := s.latest, s.events
	s.latest, s.events = nil, nil
	return snap, events, s.removeRequested
}

func (s *matchState) removalRequested() bool {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	return s.removeRequested
}

// view builds the read model. Callers hold mu.
func (s *matchState) view(tracked bool) domain.MatchView {
	return domain.MatchView{
		FixtureID:   s.fixtureID,
		HomeTeam:    s.info.HomeTeam,
		AwayTeam:    s.info.AwayTeam,
		Competition: s.info.Competition,
		Clock:       s.clock.Snapshot(),
		Score:       s.score,
		Tracked:     tracked,
	}
}

func (s *matchState) marketsView() domain.MarketsView {
	return domain.MarketsView{
		FixtureID: s.fixtureID,
		Clock:     s.clock.Snapshot(),
		Score:     s.score,
		Mode:      s.book.Mode(),
		Groups:    s.book.View(),
		Resolved:  s.book.Resolved(),
	}
}
