// Package bundb owns the Postgres connection and hands out the bun-backed
// repositories.
package bundb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	gamedb "github.com/julienbrs/blindtest-sub000/app/modules/game/infrastructure/repositories"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	roomdb "github.com/julienbrs/blindtest-sub000/app/modules/room/infrastructure/repositories"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/config"
)

// DBService bundles the repositories sharing one connection pool. Every
// repository carries the change-feed publisher so row writes fan out to the
// room's subscribers.
type DBService struct {
	RoomDB   *roomdb.RoomDBImpl
	PlayerDB *roomdb.PlayerDBImpl
	BuzzDB   *gamedb.BuzzDBImpl
	db       *bun.DB
}

// GetDB returns the underlying database handle.
func (dbService *DBService) GetDB() *bun.DB {
	return dbService.db
}

// NewBunDBService connects to Postgres and wires the repositories.
func NewBunDBService(ctx context.Context, cfg config.PostgresConfig, events storeevents.Publisher) (*DBService, error) {
	sqldb, err := pgConn(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	db.RegisterModel(&roomtypes.Room{})
	db.RegisterModel(&roomtypes.Player{})
	db.RegisterModel(&gametypes.Buzz{})

	return &DBService{
		RoomDB:   &roomdb.RoomDBImpl{DB: db, Events: events},
		PlayerDB: &roomdb.PlayerDBImpl{DB: db, Events: events},
		BuzzDB:   &gamedb.BuzzDBImpl{DB: db, Events: events},
		db:       db,
	}, nil
}

// Close releases the connection pool.
func (dbService *DBService) Close() error {
	return dbService.db.Close()
}

func pgConn(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return sqldb, nil
}
