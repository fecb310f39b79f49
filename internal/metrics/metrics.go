// Package metrics exposes Prometheus collectors for the tick scheduler, bet
// flow and feed. Every method is safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flashbet"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	trackedMatches prometheus.Gauge
	staleMatches   prometheus.Gauge
	matchFailures  prometheus.Counter
	marketsOpened  prometheus.Counter
	marketsSettled *prometheus.CounterVec
	betsPlaced     prometheus.Counter
	betsRejected   *prometheus.CounterVec
	betsSettled    *prometheus.CounterVec
	payouts        prometheus.Counter
	feedPolls      *prometheus.CounterVec
	droppedEvents  prometheus.Counter
}

// New registers all collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Scheduler ticks completed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time of one scheduler tick.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		trackedMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tracked_matches",
			Help: "Matches with a live clock.",
		}),
		staleMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stale_matches",
			Help: "Tracked matches whose feed is stale.",
		}),
		matchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "match_failures_total",
			Help: "Per-match tick failures isolated by the scheduler.",
		}),
		marketsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "markets_opened_total",
			Help: "Markets opened.",
		}),
		marketsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "markets_resolved_total",
			Help: "Markets reaching a terminal status.",
		}, []string{"status"}),
		betsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_placed_total",
			Help: "Bets accepted.",
		}),
		betsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_rejected_total",
			Help: "Bets rejected by reason.",
		}, []string{"reason"}),
		betsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_settled_total",
			Help: "Bets settled by outcome.",
		}, []string{"status"}),
		payouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payouts_total",
			Help: "Sum of credited payouts.",
		}),
		feedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_polls_total",
			Help: "Feed requests by kind and result.",
		}, []string{"kind", "result"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publisher_dropped_total",
			Help: "Tick market views dropped because the publisher was behind.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.tickDuration, m.trackedMatches, m.staleMatches, m.matchFailures,
		m.marketsOpened, m.marketsSettled,
		m.betsPlaced, m.betsRejected, m.betsSettled, m.payouts,
		m.feedPolls, m.droppedEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTick records one scheduler tick.
func (m *Metrics) ObserveTick(d time.Duration, tracked, stale, failures int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.trackedMatches.Set(float64(tracked))
	m.staleMatches.Set(float64(stale))
	m.matchFailures.Add(float64(failures))
}

// MarketOpened counts n opened markets.
func (m *Metrics) MarketOpened(n int) {
	if m == nil || n == 0 {
		return
	}
	m.marketsOpened.Add(float64(n))
}

// MarketResolved counts one market reaching status.
func (m *Metrics) MarketResolved(status string) {
	if m == nil {
		return
	}
	m.marketsSettled.WithLabelValues(status).Inc()
}

// BetPlaced counts an accepted bet.
func (m *Metrics) BetPlaced() {
	if m == nil {
		return
	}
	m.betsPlaced.Inc()
}

// BetRejected counts a rejection by reason.
func (m *Metrics) BetRejected(reason string) {
	if m == nil {
		return
	}
	m.betsRejected.WithLabelValues(reason).Inc()
}

// BetSettled counts a settlement and adds its payout.
func (m *Metrics) BetSettled(status string, payout float64) {
	if m == nil {
		return
	}
	m.betsSettled.WithLabelValues(status).Inc()
	m.payouts.Add(payout)
}

// FeedPoll counts one feed request; err decides the result label.
func (m *Metrics) FeedPoll(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.feedPolls.WithLabelValues(kind, result).Inc()
}

// Dropped counts a tick result the publisher had no room for.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
