package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/ledger"
	"github.com/alanyoungcy/flashbet/internal/server/handler"
	"github.com/alanyoungcy/flashbet/internal/server/middleware"
	"github.com/alanyoungcy/flashbet/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEngine struct {
	views   []domain.MatchView
	markets map[int64]domain.MarketsView
	tracked []domain.MatchSnapshot
	stopped []int64
}

func (e *fakeEngine) Matches() []domain.MatchView { return e.views }

func (e *fakeEngine) Markets(id int64) (domain.MarketsView, error) {
	v, ok := e.markets[id]
	if !ok {
		return domain.MarketsView{}, fmt.Errorf("engine: markets %d: %w", id, domain.ErrMatchNotTracked)
	}
	return v, nil
}

func (e *fakeEngine) Track(snap domain.MatchSnapshot) error {
	if snap.Status == domain.MatchStatusFinished {
		return domain.ErrMatchFinished
	}
	e.tracked = append(e.tracked, snap)
	return nil
}

func (e *fakeEngine) StopTracking(id int64) error {
	e.stopped = append(e.stopped, id)
	return nil
}

type fakeCache struct {
	snaps map[int64]domain.MatchSnapshot
}

func (c *fakeCache) Set(context.Context, domain.MatchSnapshot) error { return nil }

func (c *fakeCache) Get(_ context.Context, id int64) (domain.MatchSnapshot, error) {
	s, ok := c.snaps[id]
	if !ok {
		return domain.MatchSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *fakeCache) List(context.Context) ([]domain.MatchSnapshot, error) {
	var out []domain.MatchSnapshot
	for _, s := range c.snaps {
		out = append(out, s)
	}
	return out, nil
}

func (c *fakeCache) Invalidate(context.Context, int64) error { return nil }

type fakeBets struct {
	err  error
	last domain.PlaceBetRequest
}

func (b *fakeBets) PlaceBet(_ context.Context, req domain.PlaceBetRequest) (domain.BetAccepted, error) {
	b.last = req
	if b.err != nil {
		return domain.BetAccepted{}, b.err
	}
	return domain.BetAccepted{BetID: "b1", NewBalance: decimal.NewFromInt(990)}, nil
}

func (b *fakeBets) Balance(user string) domain.Account {
	return domain.Account{UserID: user, Balance: decimal.NewFromInt(1000)}
}

func (b *fakeBets) Bets(context.Context, string, int) ([]domain.Bet, error) { return nil, nil }

func (b *fakeBets) Settlements(_ context.Context, after string, _ int) ([]service.SettlementEntry, error) {
	if after != "" {
		return nil, nil
	}
	return []service.SettlementEntry{{ID: "1-0", Event: json.RawMessage(`{"event":"bet_settled"}`)}}, nil
}

type fakeStatus struct{}

func (fakeStatus) Status() service.Status { return service.Status{Tracked: 1} }

type fakeLedger struct{}

func (fakeLedger) Stats() ledger.Stats { return ledger.Stats{Accounts: 2} }

type countingLimiter struct {
	limit int
	seen  map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

type fixture struct {
	engine *fakeEngine
	cache  *fakeCache
	bets   *fakeBets
	h      http.Handler
}

func newFixture(t *testing.T, limiter domain.RateLimiter, checks ...handler.Check) *fixture {
	t.Helper()
	logger := discardLogger()
	f := &fixture{
		engine: &fakeEngine{markets: map[int64]domain.MarketsView{}},
		cache:  &fakeCache{snaps: map[int64]domain.MatchSnapshot{}},
		bets:   &fakeBets{},
	}
	f.h = NewHandler(Config{RateLimit: 3, CORSOrigins: []string{"https://app.example"}}, Handlers{
		Health:  handler.NewHealthHandler(logger, checks...),
		Status:  handler.NewStatusHandler("server", "flash", time.Now(), fakeStatus{}, fakeLedger{}),
		Matches: handler.NewMatchHandler(f.engine, f.cache, logger),
		Bets:    handler.NewBetHandler(f.bets, logger),
	}, nil, limiter, logger)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func TestPlaceBetAccepted(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, "/api/bets",
		`{"user_id":"u1","match_id":7,"market_id":"7_goal_1m_10","selection":"YES","stake":"10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if !f.bets.last.Stake.Equal(decimal.NewFromInt(10)) {
		t.Errorf("stake = %s, want 10", f.bets.last.Stake)
	}
}

func TestPlaceBetRejectedIs422(t *testing.T) {
	f := newFixture(t, nil)
	f.bets.err = fmt.Errorf("wrapped: %w", domain.Reject(domain.RejectInsufficientBalance, "balance 5"))

	rec := f.do(http.MethodPost, "/api/bets", `{"user_id":"u1","match_id":7,"market_id":"m","stake":"10"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body domain.BetRejected
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reason != domain.RejectInsufficientBalance {
		t.Errorf("reason = %q, want %q", body.Reason, domain.RejectInsufficientBalance)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"user_id":`},
		{"missing market", `{"user_id":"u1","match_id":7}`},
		{"missing user", `{"match_id":7,"market_id":"m"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(http.MethodPost, "/api/bets", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPlaceBetInternalError(t *testing.T) {
	f := newFixture(t, nil)
	f.bets.err = errors.New("boom")
	rec := f.do(http.MethodPost, "/api/bets", `{"user_id":"u1","match_id":7,"market_id":"m"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetMarkets(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.markets[7] = domain.MarketsView{FixtureID: 7, Mode: "flash"}

	if rec := f.do(http.MethodGet, "/api/matches/7/markets", ""); rec.Code != http.StatusOK {
		t.Errorf("tracked: status = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/matches/8/markets", ""); rec.Code != http.StatusNotFound {
		t.Errorf("untracked: status = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/matches/abc/markets", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestListMatchesMergesCache(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.views = []domain.MatchView{{FixtureID: 7, Tracked: true}}
	f.cache.snaps[7] = domain.MatchSnapshot{FixtureID: 7, Status: domain.MatchStatusLive}
	f.cache.snaps[9] = domain.MatchSnapshot{FixtureID: 9, Status: domain.MatchStatusScheduled, HomeTeam: "A"}

	rec := f.do(http.MethodGet, "/api/matches", "")
	var body struct {
		Matches []struct {
			FixtureID int64  `json:"fixture_id"`
			Tracked   bool   `json:"tracked"`
			HomeTeam  string `json:"home_team"`
		} `json:"matches"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(body.Matches))
	}
	if body.Matches[0].FixtureID != 7 || !body.Matches[0].Tracked {
		t.Errorf("first = %+v, want tracked 7", body.Matches[0])
	}
	if body.Matches[1].FixtureID != 9 || body.Matches[1].HomeTeam != "A" {
		t.Errorf("second = %+v, want cached 9", body.Matches[1])
	}
}

func TestTrackAndUntrack(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.snaps[7] = domain.MatchSnapshot{FixtureID: 7, Status: domain.MatchStatusLive}
	f.cache.snaps[8] = domain.MatchSnapshot{FixtureID: 8, Status: domain.MatchStatusFinished}

	if rec := f.do(http.MethodPost, "/api/matches/7/track", ""); rec.Code != http.StatusOK {
		t.Errorf("track: status = %d, want 200", rec.Code)
	}
	if len(f.engine.tracked) != 1 || f.engine.tracked[0].FixtureID != 7 {
		t.Errorf("tracked = %v", f.engine.tracked)
	}
	if rec := f.do(http.MethodPost, "/api/matches/8/track", ""); rec.Code != http.StatusConflict {
		t.Errorf("finished: status = %d, want 409", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/matches/99/track", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown: status = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/matches/7/track", ""); rec.Code != http.StatusOK {
		t.Errorf("untrack: status = %d, want 200", rec.Code)
	}
	if len(f.engine.stopped) != 1 {
		t.Errorf("stopped = %v, want [7]", f.engine.stopped)
	}
}

func TestHealthDegraded(t *testing.T) {
	f := newFixture(t, nil,
		handler.Check{Name: "redis", Ping: func(context.Context) error { return nil }},
		handler.Check{Name: "postgres", Ping: func(context.Context) error { return errors.New("down") }},
	)
	rec := f.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatusAndBalance(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
		t.Errorf("status endpoint = %d, want 200", rec.Code)
	}
	rec := f.do(http.MethodGet, "/api/users/u1/balance", "")
	var acct domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&acct); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acct.UserID != "u1" || !acct.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("account = %+v", acct)
	}
	if rec := f.do(http.MethodGet, "/api/users/u1/bets", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"bets":[]`) {
		t.Errorf("bets = %d %s, want empty list", rec.Code, rec.Body)
	}
}

func TestRateLimitExemptsHealth(t *testing.T) {
	lim := &countingLimiter{limit: 3, seen: map[string]int{}}
	f := newFixture(t, lim)

	for i := 0; i < 3; i++ {
		if rec := f.do(http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	if rec := f.do(http.MethodGet, "/api/status", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("4th request status = %d, want 429", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/bets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set(middleware.RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got header %q", got)
	}
	if got := rec.Header().Get(middleware.RequestIDHeader); got != "abc" {
		t.Errorf("request id = %q, want abc", got)
	}
}

type fakeArchive struct {
	files map[string]string
}

func (a *fakeArchive) List(context.Context) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, body := range a.files {
		out = append(out, domain.BlobInfo{Path: p, Size: int64(len(body))})
	}
	return out, nil
}

func (a *fakeArchive) Open(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := a.files[path]
	if !ok {
		return nil, fmt.Errorf("archive_service: open %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestArchiveRoutes(t *testing.T) {
	logger := discardLogger()
	const path = "settled_bets/2026-03-01/20260301T000000Z-000.jsonl"
	arch := &fakeArchive{files: map[string]string{path: "{\"id\":\"b1\"}\n"}}
	h := NewHandler(Config{}, Handlers{
		Health:  handler.NewHealthHandler(logger),
		Status:  handler.NewStatusHandler("full", "flash", time.Now(), fakeStatus{}, fakeLedger{}),
		Matches: handler.NewMatchHandler(&fakeEngine{}, &fakeCache{}, logger),
		Bets:    handler.NewBetHandler(&fakeBets{}, logger),
		Archive: handler.NewArchiveHandler(arch, logger),
	}, nil, nil, logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), path) {
		t.Fatalf("list = %d %s, want 200 with %s", rec.Code, rec.Body, path)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive/"+path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
	}
	if got := rec.Body.String(); got != "{\"id\":\"b1\"}\n" {
		t.Errorf("body = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive/settled_bets/nope.jsonl", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}

type fakeAuditLog struct {
	opts domain.ListOpts
}

func (a *fakeAuditLog) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.opts = opts
	return []domain.AuditEntry{{ID: 1, Event: domain.AuditBetPlaced, Detail: map[string]any{"bet_id": "b1"}}}, nil
}

func TestAuditRoute(t *testing.T) {
	logger := discardLogger()
	audit := &fakeAuditLog{}
	h := NewHandler(Config{}, Handlers{
		Health:  handler.NewHealthHandler(logger),
		Status:  handler.NewStatusHandler("full", "flash", time.Now(), fakeStatus{}, fakeLedger{}),
		Matches: handler.NewMatchHandler(&fakeEngine{}, &fakeCache{}, logger),
		Bets:    handler.NewBetHandler(&fakeBets{}, logger),
		Audit:   handler.NewAuditHandler(audit, logger),
	}, nil, nil, logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit?limit=5&offset=10&since=2026-10-01T00:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if audit.opts.Limit != 5 || audit.opts.Offset != 10 || audit.opts.Since == nil {
		t.Errorf("opts = %+v, want limit 5 offset 10 with since", audit.opts)
	}
	var body struct {
		Entries []struct {
			Event string `json:"event"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Event != "bet.placed" {
		t.Errorf("entries = %+v", body.Entries)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit?since=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", rec.Code)
	}
}

func TestListSettlements(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/settlements", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Entries []service.SettlementEntry `json:"entries"`
		Next    string                    `json:"next"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Next != "1-0" {
		t.Errorf("body = %+v, want one entry and next 1-0", body)
	}

	rec = f.do(http.MethodGet, "/api/settlements?after=1-0", "")
	if !strings.Contains(rec.Body.String(), `"entries":[]`) || !strings.Contains(rec.Body.String(), `"next":"1-0"`) {
		t.Errorf("caught-up body = %s", rec.Body)
	}
}
