// Package app wires the server process: observability, Postgres, NATS, the
// room API and the scheduled-job queue. Game rounds themselves run in the
// clients; the server's job is the store, the change feed and the schedules.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/julienbrs/blindtest-sub000/api"
	"github.com/julienbrs/blindtest-sub000/app/eventbus"
	gamequeue "github.com/julienbrs/blindtest-sub000/app/modules/game/infrastructure/queue"
	"github.com/julienbrs/blindtest-sub000/app/modules/game/presence"
	roomservice "github.com/julienbrs/blindtest-sub000/app/modules/room/application"
	obs "github.com/julienbrs/blindtest-sub000/app/shared/observability"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	"github.com/julienbrs/blindtest-sub000/config"
	"github.com/julienbrs/blindtest-sub000/db/bundb"
)

// App holds the initialized server components.
type App struct {
	Config   *config.Config
	Obs      *obs.Obs
	Bus      eventbus.EventBus
	Presence *presence.FleetTracker
	Rooms    roomservice.Service
	Queue    *gamequeue.Service

	db         *bundb.DBService
	natsConn   *nc.Conn
	httpServer *http.Server
}

// NewApp initializes every component. ctx bounds startup work and the
// lifetime of the presence sweeper.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	observability, err := obs.Init(ctx, config.ToObsConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	logger := observability.Logger

	bus, err := eventbus.NewNATSEventBus(ctx, cfg.NATS.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres, bus)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	// Presence heartbeats ride core NATS on a dedicated connection; the
	// cleanup worker reads them fleet-wide.
	natsConn, err := nc.Connect(cfg.NATS.URL, nc.RetryOnFailedConnect(true))
	if err != nil {
		bus.Close()
		dbService.Close()
		return nil, fmt.Errorf("failed to connect to NATS for presence: %w", err)
	}
	tracker, err := presence.NewFleetTracker(ctx, natsConn, logger)
	if err != nil {
		natsConn.Close()
		bus.Close()
		dbService.Close()
		return nil, fmt.Errorf("failed to initialize presence tracker: %w", err)
	}

	rooms := roomservice.NewRoomService(dbService.RoomDB, dbService.PlayerDB, logger, observability.Metrics, observability.Tracer)

	queue, err := gamequeue.NewService(ctx, dbService.GetDB(), logger, cfg.Postgres.DSN, bus, dbService.RoomDB, tracker)
	if err != nil {
		natsConn.Close()
		bus.Close()
		dbService.Close()
		return nil, fmt.Errorf("failed to initialize queue service: %w", err)
	}

	handlers := api.NewHandlers(rooms, bus, queue, []byte(cfg.JWT.Secret), logger)

	return &App{
		Config:   cfg,
		Obs:      observability,
		Bus:      bus,
		Presence: tracker,
		Rooms:    rooms,
		Queue:    queue,
		db:       dbService,
		natsConn: natsConn,
		httpServer: &http.Server{
			Addr:    cfg.HTTP.Address,
			Handler: handlers.Router(),
		},
	}, nil
}

// DB returns the database service.
func (app *App) DB() *bundb.DBService {
	return app.db
}

// Run starts the queue client and the HTTP listener and blocks until ctx is
// canceled, then shuts everything down.
func (app *App) Run(ctx context.Context) error {
	logger := app.Obs.Logger

	if err := app.Queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue service: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", attr.String("address", app.Config.HTTP.Address))
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		app.shutdown(logger)
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		app.shutdown(logger)
		return nil
	}
}

func (app *App) shutdown(logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", attr.Error(err))
	}
	if err := app.Queue.Stop(shutdownCtx); err != nil {
		logger.Warn("Queue shutdown failed", attr.Error(err))
	}
	app.natsConn.Close()
	if err := app.Bus.Close(); err != nil {
		logger.Warn("Event bus close failed", attr.Error(err))
	}
	if err := app.db.Close(); err != nil {
		logger.Warn("Database close failed", attr.Error(err))
	}
	if err := app.Obs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Observability shutdown failed", attr.Error(err))
	}
}
