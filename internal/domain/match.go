package domain

import (
	"fmt"
	"time"
)

// MatchStatus is the normalized live status of a fixture.
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "SCHEDULED"
	MatchStatusLive      MatchStatus = "LIVE"
	MatchStatusPaused    MatchStatus = "PAUSED"
	MatchStatusHalfTime  MatchStatus = "HALF_TIME"
	MatchStatusFinished  MatchStatus = "FINISHED"
)

// IsLive reports whether the clock runs in this status.
func (s MatchStatus) IsLive() bool { return s == MatchStatusLive }

// Trackable reports whether a fixture in this status should have a clock.
func (s MatchStatus) Trackable() bool {
	switch s {
	case MatchStatusLive, MatchStatusPaused, MatchStatusHalfTime:
		return true
	default:
		return false
	}
}

// Period is the phase of play derived by the match clock.
type Period string

const (
	PeriodFirstHalf  Period = "FIRST_HALF"
	PeriodStoppage1  Period = "STOPPAGE_1"
	PeriodHalfTime   Period = "HALF_TIME"
	PeriodSecondHalf Period = "SECOND_HALF"
	PeriodStoppage2  Period = "STOPPAGE_2"
	PeriodFinished   Period = "FINISHED"
)

// IsStoppage reports whether the period is added time.
func (p Period) IsStoppage() bool {
	return p == PeriodStoppage1 || p == PeriodStoppage2
}

// Score is a home/away goal count.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// String renders the score the way it is frozen on bets, e.g. "2-1".
func (s Score) String() string { return fmt.Sprintf("%d-%d", s.Home, s.Away) }

// Total is the number of goals scored by both sides.
func (s Score) Total() int { return s.Home + s.Away }

// ParseScore parses a "home-away" string.
func ParseScore(v string) (Score, error) {
	var s Score
	if _, err := fmt.Sscanf(v, "%d-%d", &s.Home, &s.Away); err != nil {
		return Score{}, fmt.Errorf("parse score %q: %w", v, err)
	}
	return s, nil
}

// MatchSnapshot is one observation pushed by a feed collaborator.
type MatchSnapshot struct {
	FixtureID      int64       `json:"fixture_id"`
	Status         MatchStatus `json:"status"`
	ElapsedMinutes int         `json:"elapsed_minutes"`
	ElapsedSeconds int         `json:"elapsed_seconds,omitempty"`
	Period         Period      `json:"period,omitempty"`
	HomeScore      int         `json:"home_score"`
	AwayScore      int         `json:"away_score"`
	HomeCards      int         `json:"home_cards,omitempty"`
	AwayCards      int         `json:"away_cards,omitempty"`
	HomeTeam       string      `json:"home_team"`
	AwayTeam       string      `json:"away_team"`
	Competition    string      `json:"competition,omitempty"`
	KickoffAt      time.Time   `json:"kickoff_at,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Elapsed is the observed match time in seconds. A feed with sub-minute
// precision sets ElapsedSeconds, which then supersedes ElapsedMinutes.
func (s MatchSnapshot) Elapsed() int {
	if s.ElapsedSeconds > 0 {
		return s.ElapsedSeconds
	}
	return s.ElapsedMinutes * 60
}

// Score returns the snapshot's score.
func (s MatchSnapshot) Score() Score { return Score{Home: s.HomeScore, Away: s.AwayScore} }

// Cards is the total booking count reported by the feed, 0 when unknown.
func (s MatchSnapshot) Cards() int { return s.HomeCards + s.AwayCards }

// MatchEventType enumerates discrete in-play events.
type MatchEventType string

const (
	EventGoal     MatchEventType = "goal"
	EventCard     MatchEventType = "card"
	EventRedCard  MatchEventType = "red_card"
	EventCorner   MatchEventType = "corner"
	EventDanger   MatchEventType = "danger"
	EventSafe     MatchEventType = "safe"
	EventPenalty  MatchEventType = "penalty"
	EventFreeKick MatchEventType = "free_kick"
)

// IsCard reports whether the event is a booking of any colour.
func (t MatchEventType) IsCard() bool { return t == EventCard || t == EventRedCard }

// Team identifies a side.
type Team string

const (
	TeamHome Team = "Home"
	TeamAway Team = "Away"
)

// MatchEvent is a discrete event raised by a feed. A GoalEvent is a MatchEvent
// with Type EventGoal.
type MatchEvent struct {
	FixtureID int64          `json:"fixture_id"`
	Type      MatchEventType `json:"type"`
	Team      Team           `json:"team,omitempty"`
	Minute    int            `json:"minute"`
	At        time.Time      `json:"at"`
}

// MatchClock is the engine's continuous view of match time.
type MatchClock struct {
	FixtureID          int64       `json:"fixture_id"`
	ElapsedSeconds     int         `json:"elapsed_seconds"`
	Period             Period      `json:"period"`
	Status             MatchStatus `json:"status"`
	LastExternalSyncAt time.Time   `json:"last_external_sync_at"`
	Stale              bool        `json:"stale"`
}

// Minute is the whole elapsed minute.
func (c MatchClock) Minute() int { return c.ElapsedSeconds / 60 }

// CurrentMinute is elapsed time in fractional minutes.
func (c MatchClock) CurrentMinute() float64 { return float64(c.ElapsedSeconds) / 60 }

// Phase normalizes the period against elapsed time, so a clock reported as
// FIRST_HALF past 45:00 is treated as first-half stoppage.
func (c MatchClock) Phase() Period {
	switch {
	case c.Status == MatchStatusHalfTime:
		return PeriodHalfTime
	case c.Finished():
		return PeriodFinished
	case c.Period == PeriodFirstHalf && c.ElapsedSeconds >= 45*60:
		return PeriodStoppage1
	case c.Period == PeriodSecondHalf && c.ElapsedSeconds >= 90*60:
		return PeriodStoppage2
	case c.Period == "":
		return PeriodFirstHalf
	default:
		return c.Period
	}
}

// Finished reports whether the match is over.
func (c MatchClock) Finished() bool {
	return c.Status == MatchStatusFinished || c.Period == PeriodFinished
}

// MatchView is the read model of a tracked match.
type MatchView struct {
	FixtureID   int64      `json:"fixture_id"`
	HomeTeam    string     `json:"home_team"`
	AwayTeam    string     `json:"away_team"`
	Competition string     `json:"competition,omitempty"`
	Clock       MatchClock `json:"clock"`
	Score       Score      `json:"score"`
	Tracked     bool       `json:"tracked"`
}
