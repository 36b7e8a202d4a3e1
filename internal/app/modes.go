package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/refmet/catmarket/internal/domain"
	"github.com/refmet/catmarket/internal/server"
	"github.com/refmet/catmarket/internal/server/handler"
	"github.com/refmet/catmarket/internal/server/ws"
	"github.com/refmet/catmarket/internal/service"
)

// archiveLockKey serializes archive sweeps across instances.
const archiveLockKey = "locks:settlement-archive"

// services bundles the service layer built on top of the wired dependencies.
type services struct {
	tenders       *service.TenderService
	settlement    *service.SettlementEngine
	baskets       *service.BasketService
	notifications *service.NotificationFanout
}

// buildServices constructs the service layer. The notification fan-out is
// wired into the settlement engine so every committed settlement produces
// per-user records.
func (a *App) buildServices(deps *Dependencies) *services {
	fanout := service.NewNotificationFanout(
		deps.NotificationStore, deps.SignalBus, deps.Notifier, a.logger,
	)
	engine := service.NewSettlementEngine(
		deps.TenderStore, deps.ListingStore, deps.SettlementStore,
		deps.ListingCache, deps.SignalBus, deps.AuditStore, fanout, a.logger,
	)
	tenders := service.NewTenderService(
		deps.TenderStore, deps.ListingStore, deps.ListingCache,
		deps.SignalBus, deps.AuditStore, a.logger,
	)
	baskets := service.NewBasketService(deps.BasketStore, deps.BoughtItemStore, a.logger)

	return &services{
		tenders:       tenders,
		settlement:    engine,
		baskets:       baskets,
		notifications: fanout,
	}
}

// ServeMode runs the HTTP API and websocket hub only. Background sweeps are
// left to worker instances.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// WorkerMode runs the background sweeps only: the settlement archive export
// and notification redelivery. Locks ensure each sweep runs on one instance
// at a time, so workers scale horizontally.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startWorkers(ctx, g, deps, svcs)

	return g.Wait()
}

// FullMode runs the HTTP API and the background sweeps in one process. The
// default for single-instance deployments.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	a.startWorkers(ctx, g, deps, svcs)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and websocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, skipping HTTP server")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.PG, deps.Redis, a.logger),
		Listings:      handler.NewListingHandler(svcs.tenders, svcs.settlement, a.logger),
		Tenders:       handler.NewTenderHandler(svcs.tenders, svcs.settlement, a.logger),
		Baskets:       handler.NewBasketHandler(svcs.baskets, a.logger),
		Notifications: handler.NewNotificationHandler(svcs.notifications, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startWorkers adds the background sweep goroutines to the given errgroup.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	// Notification redelivery.
	g.Go(func() error {
		err := svcs.notifications.RunRedelivery(
			ctx, a.cfg.Notifications.RedeliveryInterval.Duration, deps.LockManager,
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Settlement archive export.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveSweep(ctx, deps)
		})
	} else {
		a.logger.InfoContext(ctx, "archive sweep disabled")
	}
}

// runArchiveSweep periodically exports settled listings older than the
// retention window to blob storage. Each pass takes a distributed lock so
// only one worker exports at a time.
func (a *App) runArchiveSweep(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.SweepInterval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archive sweep started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			release, err := deps.LockManager.Acquire(ctx, archiveLockKey, 5*time.Minute)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					continue
				}
				a.logger.ErrorContext(ctx, "archive sweep: acquire lock failed",
					slog.String("error", err.Error()),
				)
				continue
			}

			cutoff := time.Now().UTC().Add(-retention)
			count, err := deps.Archiver.ArchiveSettlements(ctx, cutoff)
			release()
			if err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
				if deps.Notifier != nil {
					_ = deps.Notifier.Notify(ctx, "error", "Archive sweep failed",
						fmt.Sprintf("Settlement archive export failed: %v", err))
				}
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archive sweep complete",
					slog.Int64("archived", count),
				)
			}
		}
	}
}
