package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu      sync.Mutex
	pubs    []published
	streams map[string][][]byte
}

func newFakeBus() *fakeBus { return &fakeBus{streams: map[string][][]byte{}} }

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, published{channel: channel, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

// StreamRead numbers entries from 1; lastID "0" reads from the start.
func (b *fakeBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, err := strconv.Atoi(lastID)
	if err != nil {
		return nil, err
	}
	var out []domain.StreamMessage
	for i := start; i < len(b.streams[stream]) && len(out) < count; i++ {
		out = append(out, domain.StreamMessage{ID: strconv.Itoa(i + 1), Payload: b.streams[stream][i]})
	}
	return out, nil
}

func (b *fakeBus) on(channel string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.pubs {
		if p.channel == channel {
			out = append(out, p)
		}
	}
	return out
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
	detail []map[string]any
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type fakePlacer struct {
	acc   domain.BetAccepted
	err   error
	calls int
}

func (p *fakePlacer) PlaceBet(req domain.PlaceBetRequest, now time.Time) (domain.BetAccepted, error) {
	p.calls++
	if p.err != nil {
		return domain.BetAccepted{}, p.err
	}
	acc := p.acc
	acc.Bet.UserID = req.UserID
	acc.Bet.Selection = req.Selection
	acc.Bet.PlacedAt = now
	return acc, nil
}

type fakeAccounts struct {
	balance decimal.Decimal
	bets    []domain.Bet
}

func (a *fakeAccounts) Balance(string) decimal.Decimal { return a.balance }
func (a *fakeAccounts) Bets(string) []domain.Bet {
	return append([]domain.Bet(nil), a.bets...)
}

type fakeSettledStore struct {
	mu       sync.Mutex
	inserted []domain.BetSettled
	history  []domain.Bet
}

func (s *fakeSettledStore) Insert(_ context.Context, b domain.BetSettled) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, b)
	return nil
}

func (s *fakeSettledStore) ListByUser(_ context.Context, _ string, opts domain.ListOpts) ([]domain.Bet, error) {
	out := s.history
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeSettledStore) ListBefore(context.Context, time.Time, int) ([]domain.Bet, error) {
	return nil, nil
}

func (s *fakeSettledStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return "recorder" }
