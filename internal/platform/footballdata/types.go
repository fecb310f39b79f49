package footballdata

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// APIMatch is the subset of a football-data.org v4 match resource used here.
type APIMatch struct {
	ID          int64          `json:"id"`
	UTCDate     time.Time      `json:"utcDate"`
	Status      string         `json:"status"`
	Minute      flexInt        `json:"minute"`
	Competition APICompetition `json:"competition"`
	HomeTeam    APITeam        `json:"homeTeam"`
	AwayTeam    APITeam        `json:"awayTeam"`
	Score       APIScore       `json:"score"`
	Bookings    []APIBooking   `json:"bookings"`
}

type APICompetition struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type APITeam struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

// APIScore carries nullable goal counts; nil means "not yet known".
type APIScore struct {
	Winner   *string     `json:"winner"`
	Duration string      `json:"duration"`
	FullTime APIGoalPair `json:"fullTime"`
	HalfTime APIGoalPair `json:"halfTime"`
}

type APIGoalPair struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type APIBooking struct {
	Minute flexInt `json:"minute"`
	Team   APITeam `json:"team"`
	Card   string  `json:"card"`
}

type matchList struct {
	Matches []APIMatch `json:"matches"`
}

// flexInt decodes a minute the API sends as a number, as null, or as a
// string with added time such as "45+2". For the string form base keeps the
// regulation minute so the half can be told apart from the total.
type flexInt struct {
	total int
	base  int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] != '"' {
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		f.total, f.base = n, n
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for i, part := range strings.Split(s, "+") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			*f = flexInt{}
			return nil
		}
		if i == 0 {
			f.base = n
		}
		f.total += n
	}
	return nil
}

// period reports the half implied by added-time notation, or "".
func (f flexInt) period() domain.Period {
	if f.total <= f.base {
		return ""
	}
	switch f.base {
	case 45:
		return domain.PeriodFirstHalf
	case 90:
		return domain.PeriodSecondHalf
	}
	return ""
}

// NormalizeStatus maps provider statuses onto the engine's status set.
func NormalizeStatus(s string) domain.MatchStatus {
	switch s {
	case "IN_PLAY", "LIVE":
		return domain.MatchStatusLive
	case "PAUSED":
		return domain.MatchStatusHalfTime
	case "FINISHED", "AWARDED":
		return domain.MatchStatusFinished
	case "SUSPENDED":
		return domain.MatchStatusPaused
	default:
		return domain.MatchStatusScheduled
	}
}

// ToSnapshot converts the resource into a feed observation stamped at.
func (m APIMatch) ToSnapshot(at time.Time) domain.MatchSnapshot {
	status := NormalizeStatus(m.Status)
	snap := domain.MatchSnapshot{
		FixtureID:   m.ID,
		Status:      status,
		HomeTeam:    teamName(m.HomeTeam),
		AwayTeam:    teamName(m.AwayTeam),
		Competition: m.Competition.Code,
		KickoffAt:   m.UTCDate,
		Timestamp:   at,
	}

	switch status {
	case domain.MatchStatusLive, domain.MatchStatusPaused:
		snap.ElapsedMinutes = m.Minute.total
		snap.Period = m.Minute.period()
	case domain.MatchStatusHalfTime:
		snap.ElapsedMinutes = 45
		snap.Period = domain.PeriodHalfTime
	case domain.MatchStatusFinished:
		snap.ElapsedMinutes = 90
		snap.Period = domain.PeriodFinished
	}

	snap.HomeScore, snap.AwayScore = goals(m.Score)
	for _, b := range m.Bookings {
		switch b.Team.ID {
		case m.HomeTeam.ID:
			snap.HomeCards++
		case m.AwayTeam.ID:
			snap.AwayCards++
		}
	}
	return snap
}

// goals prefers the full-time pair, which the API keeps current during play,
// and falls back to the half-time pair.
func goals(s APIScore) (int, int) {
	if s.FullTime.Home != nil && s.FullTime.Away != nil {
		return *s.FullTime.Home, *s.FullTime.Away
	}
	if s.HalfTime.Home != nil && s.HalfTime.Away != nil {
		return *s.HalfTime.Home, *s.HalfTime.Away
	}
	return 0, 0
}

func teamName(t APITeam) string {
	if t.ShortName != "" {
		return t.ShortName
	}
	return t.Name
}
