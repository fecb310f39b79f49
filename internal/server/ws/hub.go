// Package ws bridges the signal bus to websocket clients. Clients subscribe
// to match and user channels and may place bets over the same connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/server/middleware"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	placeTimeout = 5 * time.Second
)

// defaultChannels are bus channels every client receives without asking.
var defaultChannels = []string{domain.ChannelMatches, domain.ChannelStatus}

// BetPlacer books bets submitted over the socket.
type BetPlacer interface {
	PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (domain.BetAccepted, error)
}

// Config captures runtime metadata and origin policy.
type Config struct {
	Mode           string
	StartedAt      time.Time
	AllowedOrigins []string
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// clientMsg is the JSON message a client sends.
type clientMsg struct {
	Action   string                  `json:"action"` // subscribe, unsubscribe or place_bet
	Channels []string                `json:"channels"`
	Bet      *domain.PlaceBetRequest `json:"bet"`
}

// serverMsg is a reply addressed to a single client.
type serverMsg struct {
	Event string    `json:"event"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

type busSub struct {
	refs   int
	cancel context.CancelFunc
}

// broadcastMsg carries a message along with its source channel so the hub
// can route it only to clients subscribed to that channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// Hub manages a set of connected WebSocket clients. Bus subscriptions are
// reference counted: a markets or bets channel is subscribed while at least
// one client wants it.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	bets       BetPlacer
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time

	subMu   sync.Mutex
	baseCtx context.Context
	active  map[string]*busSub
}

// NewHub creates a hub over bus. bets may be nil, which disables placement
// over the socket.
func NewHub(bus domain.SignalBus, bets BetPlacer, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	origins := cfg.AllowedOrigins

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		bets:       bets,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origins, origin)
			},
		},
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: startedAt,
		active:    make(map[string]*busSub),
	}
}

// Run starts the hub's main event loop and exits when ctx is cancelled. It
// must be called once.
func (h *Hub) Run(ctx context.Context) error {
	h.subMu.Lock()
	h.baseCtx = ctx
	for _, ch := range defaultChannels {
		h.active[ch] = &busSub{refs: 1}
	}
	for ch, s := range h.active {
		s.cancel = h.startSubscription(ch)
	}
	h.subMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			if ok {
				for _, ch := range c.channels() {
					h.release(ch)
				}
			}
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) {
					select {
					case c.send <- msg.data:
					default:
						h.logger.Warn("ws: dropping message for slow client",
							slog.String("channel", msg.channel),
						)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// acquire takes a reference on a bus channel, subscribing on first use.
func (h *Hub) acquire(channel string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if s, ok := h.active[channel]; ok {
		s.refs++
		return
	}
	s := &busSub{refs: 1}
	if h.baseCtx != nil {
		s.cancel = h.startSubscription(channel)
	}
	h.active[channel] = s
}

// release drops a reference, unsubscribing when none remain.
func (h *Hub) release(channel string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	s, ok := h.active[channel]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	delete(h.active, channel)
}

// startSubscription must be called with subMu held and baseCtx set.
func (h *Hub) startSubscription(channel string) context.CancelFunc {
	ctx, cancel := context.WithCancel(h.baseCtx)
	go h.subscribeToChannel(ctx, channel)
	return cancel
}

// subscribeToChannel forwards one bus channel to the broadcast loop.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Debug("ws: subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendInitialStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribable reports whether a client may ask for channel.
func subscribable(channel string) bool {
	return strings.HasPrefix(channel, "markets:") && len(channel) > len("markets:") ||
		strings.HasPrefix(channel, "bets:") && len(channel) > len("bets:")
}

// readPump reads client messages until the connection fails.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg clientMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			c.reply("error", map[string]string{"error": "invalid message"})
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.subscribe(msg.Channels)
		case "unsubscribe":
			c.unsubscribe(msg.Channels)
		case "place_bet":
			c.placeBet(msg.Bet)
		default:
			c.reply("error", map[string]string{"error": "unknown action " + msg.Action})
		}
	}
}

func (c *client) subscribe(channels []string) {
	for _, ch := range channels {
		if !subscribable(ch) {
			continue
		}
		c.mu.Lock()
		added := !c.subs[ch]
		c.subs[ch] = true
		c.mu.Unlock()
		if added {
			c.hub.acquire(ch)
		}
	}
}

func (c *client) unsubscribe(channels []string) {
	for _, ch := range channels {
		if !subscribable(ch) {
			continue
		}
		c.mu.Lock()
		removed := c.subs[ch]
		delete(c.subs, ch)
		c.mu.Unlock()
		if removed {
			c.hub.release(ch)
		}
	}
}

// placeBet books req and answers on this connection only. The user's bets
// channel is subscribed so settlement follows.
func (c *client) placeBet(req *domain.PlaceBetRequest) {
	if c.hub.bets == nil {
		c.reply("error", map[string]string{"error": "bet placement not available"})
		return
	}
	if req == nil || req.UserID == "" || req.MarketID == "" || req.MatchID == 0 {
		c.reply("error", map[string]string{"error": "user_id, match_id and market_id are required"})
		return
	}
	c.subscribe([]string{domain.BetsChannel(req.UserID)})

	c.hub.subMu.Lock()
	base := c.hub.baseCtx
	c.hub.subMu.Unlock()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, placeTimeout)
	defer cancel()

	acc, err := c.hub.bets.PlaceBet(ctx, *req)
	var rej *domain.RejectionError
	switch {
	case err == nil:
		c.reply("bet_accepted", acc)
	case errors.As(err, &rej):
		c.reply("bet_rejected", rej.BetRejected)
	default:
		c.hub.logger.Error("ws: place bet failed", slog.String("error", err.Error()))
		c.reply("error", map[string]string{"error": "place bet failed"})
	}
}

func (c *client) reply(event string, data any) {
	msg, err := json.Marshal(serverMsg{Event: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		return
	}
	// send is closed when the hub shuts down.
	defer func() { _ = recover() }()
	select {
	case c.send <- msg:
	default:
	}
}

// sendInitialStatus pushes a small JSON envelope so clients can immediately
// mark the connection as healthy.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	c.reply("hello", map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
		"channels":       defaultChannels,
	})
}

func (c *client) channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for ch := range c.subs {
		if subscribable(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// isSubscribed checks whether the client is subscribed to the given channel.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
