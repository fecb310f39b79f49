package feed

import (
	"sync"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// GoalDetector derives goal events from score increases between successive
// snapshots of the same fixture. The first snapshot of a fixture only sets the
// baseline. A score that goes down (a disallowed goal) moves the baseline
// without raising anything.
type GoalDetector struct {
	mu     sync.Mutex
	scores map[int64]domain.Score
}

// NewGoalDetector creates an empty detector.
func NewGoalDetector() *GoalDetector {
	return &GoalDetector{scores: make(map[int64]domain.Score)}
}

// Observe returns one goal event per goal scored since the previous snapshot.
func (g *GoalDetector) Observe(snap domain.MatchSnapshot) []domain.MatchEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := snap.Score()
	prev, seen := g.scores[snap.FixtureID]
	g.scores[snap.FixtureID] = cur
	if !seen {
		return nil
	}

	var events []domain.MatchEvent
	goal := func(team domain.Team) {
		events = append(events, domain.MatchEvent{
			FixtureID: snap.FixtureID,
			Type:      domain.EventGoal,
			Team:      team,
			Minute:    snap.Elapsed() / 60,
			At:        snap.Timestamp,
		})
	}
	for i := prev.Home; i < cur.Home; i++ {
		goal(domain.TeamHome)
	}
	for i := prev.Away; i < cur.Away; i++ {
		goal(domain.TeamAway)
	}
	return events
}

// Forget drops a fixture's baseline.
func (g *GoalDetector) Forget(fixtureID int64) {
	g.mu.Lock()
	delete(g.scores, fixtureID)
	g.mu.Unlock()
}
