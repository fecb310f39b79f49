// Package feed drives the engine from external match data: the football-data
// poller for real fixtures and a simulated debug fixture.
package feed

import (
	"context"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// Source fetches fixtures from a sports data provider.
type Source interface {
	ListMatches(ctx context.Context, from, to time.Time, competitions []string) ([]domain.MatchSnapshot, error)
	GetMatch(ctx context.Context, fixtureID int64) (domain.MatchSnapshot, error)
}

// Sink receives observations. *engine.Engine satisfies it.
type Sink interface {
	Ingest(snap domain.MatchSnapshot) bool
	RecordEvent(ev domain.MatchEvent) bool
	TrackedFixtures() []int64
}
