// Command client runs a headless game client: it projects one room's change
// feed into local state, heartbeats presence and participates in host
// migration. Useful for smoke-testing a room without a UI.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	nc "github.com/nats-io/nats.go"

	"github.com/julienbrs/blindtest-sub000/app/eventbus"
	gameservice "github.com/julienbrs/blindtest-sub000/app/modules/game/application"
	"github.com/julienbrs/blindtest-sub000/app/modules/game/catalog"
	"github.com/julienbrs/blindtest-sub000/app/modules/game/infrastructure/feed"
	"github.com/julienbrs/blindtest-sub000/app/modules/game/migration"
	"github.com/julienbrs/blindtest-sub000/app/modules/game/presence"
	obs "github.com/julienbrs/blindtest-sub000/app/shared/observability"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
	"github.com/julienbrs/blindtest-sub000/config"
	"github.com/julienbrs/blindtest-sub000/db/bundb"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	playlistPath := flag.String("playlist", "playlist.yaml", "path to the playlist file")
	roomFlag := flag.String("room", "", "room id to join")
	playerFlag := flag.String("player", "", "player id to play as")
	flag.Parse()

	if *roomFlag == "" || *playerFlag == "" {
		log.Fatal("both -room and -player are required")
	}
	roomID := sharedtypes.RoomID(*roomFlag)
	playerID := sharedtypes.PlayerID(*playerFlag)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsConfig := config.ToObsConfig(cfg)
	obsConfig.ServiceName = "blindtest-client"
	obsConfig.MetricsAddress = ""
	observability, err := obs.Init(ctx, obsConfig)
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	logger := observability.Logger.With(
		attr.RoomID("room_id", roomID),
		attr.PlayerID("player_id", playerID),
	)

	songs, err := catalog.Load(*playlistPath)
	if err != nil {
		log.Fatalf("Failed to load playlist: %v", err)
	}

	bus, err := eventbus.NewNATSEventBus(ctx, cfg.NATS.URL, logger)
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	defer bus.Close()

	dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres, bus)
	if err != nil {
		log.Fatalf("Failed to initialize database service: %v", err)
	}
	defer dbService.Close()

	natsConn, err := nc.Connect(cfg.NATS.URL, nc.RetryOnFailedConnect(true))
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	presence.StartHeartbeat(ctx, natsConn, roomID, playerID, logger)
	tracker, err := presence.NewNATSTracker(ctx, natsConn, roomID, logger)
	if err != nil {
		log.Fatalf("Failed to start presence tracker: %v", err)
	}

	// game.Run starts the adapter itself.
	adapter := feed.NewAdapter(roomID, bus, logger, observability.Metrics)

	game := gameservice.NewGameService(roomID, playerID, gameservice.Deps{
		Rooms:       dbService.RoomDB,
		Players:     dbService.PlayerDB,
		Buzzes:      dbService.BuzzDB,
		Catalog:     songs,
		Adapter:     adapter,
		Broadcaster: bus,
		Logger:      logger,
		Metrics:     observability.Metrics,
		Tracer:      observability.Tracer,
	})

	supervisor := migration.NewSupervisor(roomID, playerID, dbService.RoomDB, dbService.PlayerDB, tracker, logger, observability.Metrics)
	supervisor.OnMigrated = func(newHost sharedtypes.PlayerID) {
		logger.Info("Host migrated", attr.PlayerID("new_host_id", newHost))
	}

	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Host-migration supervisor stopped", attr.Error(err))
		}
	}()

	logger.Info("Client running")
	if err := game.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Game loop failed: %v", err)
	}
}
