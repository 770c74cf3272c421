package roomdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// RoomDBImpl is the bun-backed RoomDB. Writes publish change events
// best-effort after commit: a lost event is recovered by the orchestrator's
// reconciliation, never by retrying the publish.
type RoomDBImpl struct {
	DB     *bun.DB
	Events storeevents.Publisher
}

func (db *RoomDBImpl) CreateRoom(ctx context.Context, room *roomtypes.Room) error {
	_, err := db.DB.NewInsert().Model(room).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	db.publishChange(ctx, storeevents.OpInsert, room)
	return nil
}

func (db *RoomDBImpl) GetRoom(ctx context.Context, roomID sharedtypes.RoomID) (*roomtypes.Room, error) {
	room := new(roomtypes.Room)
	err := db.DB.NewSelect().Model(room).Where("id = ?", roomID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room: %w", err)
	}
	return room, nil
}

func (db *RoomDBImpl) GetRoomByCode(ctx context.Context, joinCode string) (*roomtypes.Room, error) {
	room := new(roomtypes.Room)
	err := db.DB.NewSelect().Model(room).Where("upper(join_code) = upper(?)", joinCode).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch room by code: %w", err)
	}
	return room, nil
}

func (db *RoomDBImpl) UpdateStatus(ctx context.Context, roomID sharedtypes.RoomID, status roomtypes.RoomStatus) (*roomtypes.Room, error) {
	room := new(roomtypes.Room)
	err := db.DB.NewUpdate().Model(room).
		Set("status = ?", status).
		Set("updated_at = current_timestamp").
		Where("id = ?", roomID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update room status: %w", err)
	}
	db.publishChange(ctx, storeevents.OpUpdate, room)
	return room, nil
}

func (db *RoomDBImpl) SetCurrentSong(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, startedAt time.Time) (*roomtypes.Room, error) {
	room := new(roomtypes.Room)
	err := db.DB.NewUpdate().Model(room).
		Set("status = ?", roomtypes.RoomStatusPlaying).
		Set("current_song_id = ?", songID).
		Set("current_song_started_at = ?", startedAt).
		Set("updated_at = current_timestamp").
		Where("id = ?", roomID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to set current song: %w", err)
	}
	db.publishChange(ctx, storeevents.OpUpdate, room)
	return room, nil
}

func (db *RoomDBImpl) EndRoom(ctx context.Context, roomID sharedtypes.RoomID) (*roomtypes.Room, error) {
	room := new(roomtypes.Room)
	err := db.DB.NewUpdate().Model(room).
		Set("status = ?", roomtypes.RoomStatusEnded).
		Set("current_song_id = NULL").
		Set("current_song_started_at = NULL").
		Set("updated_at = current_timestamp").
		Where("id = ?", roomID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to end room: %w", err)
	}
	db.publishChange(ctx, storeevents.OpUpdate, room)
	return room, nil
}

func (db *RoomDBImpl) TransferHost(ctx context.Context, roomID sharedtypes.RoomID, from, to sharedtypes.PlayerID) (*roomtypes.Room, error) {
	room := new(roomtypes.Room)
	var oldHost, newHost roomtypes.Player

	err := db.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewUpdate().Model(room).
			Set("host_id = ?", to).
			Set("updated_at = current_timestamp").
			Where("id = ?", roomID).
			Where("host_id = ?", from).
			Returning("*").
			Scan(ctx); err != nil {
			return fmt.Errorf("failed to reassign host_id: %w", err)
		}
		if err := tx.NewUpdate().Model(&oldHost).
			Set("is_host = false").
			Where("id = ?", from).
			Returning("*").
			Scan(ctx); err != nil {
			return fmt.Errorf("failed to clear old host flag: %w", err)
		}
		if err := tx.NewUpdate().Model(&newHost).
			Set("is_host = true").
			Where("id = ?", to).
			Returning("*").
			Scan(ctx); err != nil {
			return fmt.Errorf("failed to set new host flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	db.publishChange(ctx, storeevents.OpUpdate, room)
	db.publishPlayerChange(ctx, storeevents.OpUpdate, &oldHost)
	db.publishPlayerChange(ctx, storeevents.OpUpdate, &newHost)
	return room, nil
}

func (db *RoomDBImpl) publishChange(ctx context.Context, op storeevents.Op, room *roomtypes.Room) {
	if db.Events == nil {
		return
	}
	payload := storeevents.RoomChangePayloadV1{Op: op, New: *room}
	if err := storeevents.Publish(ctx, db.Events, storeevents.RoomSubject(room.ID), payload); err != nil {
		slog.WarnContext(ctx, "Failed to publish room change", slog.Any("error", err))
	}
}

func (db *RoomDBImpl) publishPlayerChange(ctx context.Context, op storeevents.Op, player *roomtypes.Player) {
	if db.Events == nil {
		return
	}
	payload := storeevents.PlayerChangePayloadV1{Op: op, New: *player}
	if err := storeevents.Publish(ctx, db.Events, storeevents.PlayerSubject(player.RoomID), payload); err != nil {
		slog.WarnContext(ctx, "Failed to publish player change", slog.Any("error", err))
	}
}
