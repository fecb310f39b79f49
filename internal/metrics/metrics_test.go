package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveTick(3*time.Millisecond, 2, 1, 0)
	m.BetPlaced()
	m.BetRejected("MARKET_CLOSED")
	m.BetSettled("WIN", 12.5)
	m.FeedPoll("list", errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"flashbet_ticks_total 1",
		"flashbet_tracked_matches 2",
		`flashbet_bets_rejected_total{reason="MARKET_CLOSED"} 1`,
		"flashbet_payouts_total 12.5",
		`flashbet_feed_polls_total{kind="list",result="error"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Second, 1, 0, 0)
	m.BetPlaced()
	m.Dropped()
	if m.Registry() != nil {
		t.Error("nil Metrics returned a registry")
	}
}
