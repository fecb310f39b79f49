package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettledBetStore persists settled bets for history and archival.
type SettledBetStore interface {
	Insert(ctx context.Context, s BetSettled) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Bet, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Audit event names written by the service layer.
const (
	AuditBetPlaced   = "bet.placed"
	AuditBetRejected = "bet.rejected"
	AuditBetSettled  = "bet.settled"
	AuditFeedStale   = "feed.stale"
	AuditArchiveRun  = "archive.run"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
