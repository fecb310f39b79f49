package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/flashbet/internal/clock"
	"github.com/alanyoungcy/flashbet/internal/engine"
	"github.com/alanyoungcy/flashbet/internal/feed"
	"github.com/alanyoungcy/flashbet/internal/ledger"
	"github.com/alanyoungcy/flashbet/internal/lifecycle"
	"github.com/alanyoungcy/flashbet/internal/platform/footballdata"
	"github.com/alanyoungcy/flashbet/internal/server"
	"github.com/alanyoungcy/flashbet/internal/server/handler"
	"github.com/alanyoungcy/flashbet/internal/server/ws"
	"github.com/alanyoungcy/flashbet/internal/service"
)

// core is the engine and the services around it, shared by every mode.
type core struct {
	ledger    *ledger.Ledger
	engine    *engine.Engine
	publisher *service.Publisher
	bets      *service.BetService
	archive   *service.ArchiveService
}

// FullMode runs feeds, engine, publisher, archival and the HTTP/WS API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startCore(ctx, g, deps, c)
	a.startArchive(ctx, g, c)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// ServerMode runs feeds, engine and the HTTP/WS API without a database.
// Settled bets live only in memory.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startCore(ctx, g, deps, c)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// HeadlessMode runs feeds, engine and publisher with persistence but no API.
// Clients interact through the signal bus only.
func (a *App) HeadlessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting headless mode")
	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startCore(ctx, g, deps, c)
	return g.Wait()
}

func (a *App) buildCore(deps *Dependencies) *core {
	cfg := a.cfg
	settled := deps.SettledBetStore
	if !cfg.Bets.PersistSettled {
		settled = nil
	}

	l := ledger.New(ledger.Options{InitialBalance: cfg.Engine.Balance()}, a.logger)
	pub := service.NewPublisher(deps.SignalBus, settled, deps.AuditStore, deps.Notifier, deps.Metrics,
		service.PublisherConfig{BigWinPayout: cfg.Bets.BigWin()}, a.logger)

	eng := engine.New(l, engine.Options{
		TickInterval: cfg.Engine.TickInterval.Duration,
		Workers:      cfg.Engine.Workers,
		MarketMode:   cfg.Engine.MarketMode,
		Clock: clock.Options{
			DriftTolerance: cfg.Engine.DriftTolerance.Duration,
			StaleTimeout:   cfg.Engine.StaleTimeout.Duration,
			GameOverMinute: cfg.Engine.GameOverMinute,
		},
		Book: lifecycle.Options{
			CutoffMinute: cfg.Engine.CutoffMinute,
			History:      cfg.Engine.ResolvedHistory,
		},
	}, a.logger, engine.WithEmitter(pub))

	bets := service.NewBetService(eng, l, settled, deps.RateLimiter, deps.SignalBus, deps.AuditStore, deps.Metrics,
		service.BetServiceConfig{
			RateLimit:    cfg.Bets.RateLimit,
			RateWindow:   cfg.Bets.RateWindow.Duration,
			HistoryLimit: cfg.Bets.HistoryLimit,
		}, a.logger)

	c := &core{ledger: l, engine: eng, publisher: pub, bets: bets}
	if deps.Archiver != nil {
		c.archive = service.NewArchiveService(deps.Archiver, deps.LockManager, deps.BlobReader, deps.Notifier,
			service.ArchiveConfig{
				Interval:  cfg.Archive.Interval.Duration,
				Retention: time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour,
				Prefix:    cfg.Archive.Prefix,
			}, a.logger)
	}
	return c
}

// startCore adds the engine, publisher and feed goroutines.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	g.Go(func() error { return c.publisher.Run(ctx) })
	g.Go(func() error { return c.engine.Run(ctx) })

	feedCfg := a.cfg.Feed
	if feedCfg.Enabled && feedCfg.Token != "" {
		src := footballdata.NewClient(feedCfg.FootballDataURL, feedCfg.Token)
		poller := feed.NewPoller(src, c.engine, deps.MatchCache, deps.Metrics, feed.PollerConfig{
			ListInterval:  feedCfg.ListInterval.Duration,
			MatchInterval: feedCfg.MatchInterval.Duration,
			LookaheadDays: feedCfg.LookaheadDays,
			Competitions:  feedCfg.Competitions,
		}, a.logger)
		g.Go(func() error { return poller.Run(ctx) })
	} else {
		a.logger.InfoContext(ctx, "football-data feed disabled")
	}

	if feedCfg.DebugMatch {
		debug := feed.NewDebugFeed(c.engine, deps.MatchCache, feed.DebugConfig{
			FixtureID:     feedCfg.DebugFixtureID,
			Speed:         feedCfg.DebugSpeed,
			EventInterval: feedCfg.EventInterval.Duration,
		}, a.logger)
		g.Go(func() error { return debug.Run(ctx) })
	}
}

func (a *App) startArchive(ctx context.Context, g *errgroup.Group, c *core) {
	if c.archive == nil {
		a.logger.InfoContext(ctx, "settled bet archive disabled")
		return
	}
	g.Go(func() error { return c.archive.Run(ctx) })
}

// startHTTPServer adds the HTTP server and websocket hub goroutines. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, c.bets, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger, deps.HealthChecks...),
		Status:  handler.NewStatusHandler(a.cfg.Mode, c.engine.Mode(), startedAt, c.publisher, c.ledger),
		Matches: handler.NewMatchHandler(c.engine, deps.MatchCache, a.logger),
		Bets:    handler.NewBetHandler(c.bets, a.logger),
		Metrics: deps.Metrics.Handler(),
	}
	if c.archive != nil {
		handlers.Archive = handler.NewArchiveHandler(c.archive, a.logger)
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
