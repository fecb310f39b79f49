package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// Event names carried in Envelope.Event.
const (
	EventMarkets      = "markets"
	EventBetAccepted  = "bet_accepted"
	EventBetRejected  = "bet_rejected"
	EventBetSettled   = "bet_settled"
	EventMatchEvicted = "match_evicted"
	EventStatus       = "status"
)

// SettlementStream is the durable stream settlements are appended to so a
// reconnecting client can catch up.
const SettlementStream = "stream:settlements"

// Envelope is the JSON frame published on the signal bus and forwarded
// verbatim to websocket clients.
type Envelope struct {
	Event string    `json:"event"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

// publish marshals an envelope onto channel. Failures are logged, never
// returned, since delivery to subscribers is best effort.
func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel, event string, data any, at time.Time) []byte {
	payload, err := json.Marshal(Envelope{Event: event, Data: data, At: at})
	if err != nil {
		logger.ErrorContext(ctx, "marshal event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if bus == nil {
		return payload
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish failed",
			slog.String("channel", channel),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	return payload
}

// audit writes an audit row, logging instead of failing.
func audit(ctx context.Context, store domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if store == nil {
		return
	}
	if err := store.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
