package roomdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// PlayerDBImpl is the bun-backed PlayerDB.
type PlayerDBImpl struct {
	DB     *bun.DB
	Events storeevents.Publisher
}

func (db *PlayerDBImpl) CreatePlayer(ctx context.Context, player *roomtypes.Player) error {
	_, err := db.DB.NewInsert().Model(player).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	db.publish(ctx, storeevents.OpInsert, player)
	return nil
}

func (db *PlayerDBImpl) GetPlayer(ctx context.Context, playerID sharedtypes.PlayerID) (*roomtypes.Player, error) {
	player := new(roomtypes.Player)
	err := db.DB.NewSelect().Model(player).Where("id = ?", playerID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch player: %w", err)
	}
	return player, nil
}

func (db *PlayerDBImpl) ListPlayers(ctx context.Context, roomID sharedtypes.RoomID) ([]roomtypes.Player, error) {
	var players []roomtypes.Player
	err := db.DB.NewSelect().Model(&players).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

func (db *PlayerDBImpl) DeletePlayer(ctx context.Context, playerID sharedtypes.PlayerID) error {
	player := new(roomtypes.Player)
	err := db.DB.NewDelete().Model(player).
		Where("id = ?", playerID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	db.publish(ctx, storeevents.OpDelete, player)
	return nil
}

func (db *PlayerDBImpl) IncrementScore(ctx context.Context, playerID sharedtypes.PlayerID) (*roomtypes.Player, error) {
	player := new(roomtypes.Player)
	err := db.DB.NewUpdate().Model(player).
		Set("score = score + 1").
		Where("id = ?", playerID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to increment score: %w", err)
	}
	db.publish(ctx, storeevents.OpUpdate, player)
	return player, nil
}

func (db *PlayerDBImpl) publish(ctx context.Context, op storeevents.Op, player *roomtypes.Player) {
	if db.Events == nil {
		return
	}
	payload := storeevents.PlayerChangePayloadV1{Op: op, New: *player}
	if err := storeevents.Publish(ctx, db.Events, storeevents.PlayerSubject(player.RoomID), payload); err != nil {
		slog.WarnContext(ctx, "Failed to publish player change", slog.Any("error", err))
	}
}
