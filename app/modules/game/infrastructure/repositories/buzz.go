package gamedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// BuzzDBImpl is the bun-backed BuzzDB. buzzed_at defaults to the database
// clock and seq is a bigserial, so fairness ordering is decided entirely
// server-side.
type BuzzDBImpl struct {
	DB     *bun.DB
	Events storeevents.Publisher
}

func (db *BuzzDBImpl) CreateBuzz(ctx context.Context, buzz *gametypes.Buzz) error {
	err := db.DB.NewInsert().Model(buzz).
		ExcludeColumn("buzzed_at", "seq").
		Returning("buzzed_at, seq").
		Scan(ctx, &buzz.BuzzedAt, &buzz.Seq)
	if err != nil {
		return fmt.Errorf("failed to create buzz: %w", err)
	}
	db.publish(ctx, storeevents.OpInsert, buzz)
	return nil
}

func (db *BuzzDBImpl) GetWinningBuzz(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID) (*gametypes.Buzz, error) {
	buzz := new(gametypes.Buzz)
	err := db.DB.NewSelect().Model(buzz).
		Where("room_id = ?", roomID).
		Where("song_id = ?", songID).
		Where("is_winner = true").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch winning buzz: %w", err)
	}
	return buzz, nil
}

func (db *BuzzDBImpl) GetPlayerBuzz(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, playerID sharedtypes.PlayerID) (*gametypes.Buzz, error) {
	buzz := new(gametypes.Buzz)
	err := db.DB.NewSelect().Model(buzz).
		Where("room_id = ?", roomID).
		Where("song_id = ?", songID).
		Where("player_id = ?", playerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch player buzz: %w", err)
	}
	return buzz, nil
}

func (db *BuzzDBImpl) ListBuzzes(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID) ([]gametypes.Buzz, error) {
	var buzzes []gametypes.Buzz
	err := db.DB.NewSelect().Model(&buzzes).
		Where("room_id = ?", roomID).
		Where("song_id = ?", songID).
		Where("invalidated = false").
		Order("buzzed_at ASC", "seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buzzes: %w", err)
	}
	return buzzes, nil
}

func (db *BuzzDBImpl) MarkWinner(ctx context.Context, buzzID string) (*gametypes.Buzz, error) {
	buzz := new(gametypes.Buzz)
	err := db.DB.NewUpdate().Model(buzz).
		Set("is_winner = true").
		Where("id = ?", buzzID).
		Where("invalidated = false").
		Where("NOT EXISTS (SELECT 1 FROM buzzes w WHERE w.room_id = bz.room_id AND w.song_id = bz.song_id AND w.is_winner)").
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Winner already decided, possibly by a concurrent resolver.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark winner: %w", err)
	}
	db.publish(ctx, storeevents.OpUpdate, buzz)
	return buzz, nil
}

func (db *BuzzDBImpl) ClearWinner(ctx context.Context, buzzID string) (*gametypes.Buzz, error) {
	buzz := new(gametypes.Buzz)
	err := db.DB.NewUpdate().Model(buzz).
		Set("is_winner = false").
		Set("invalidated = true").
		Where("id = ?", buzzID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to clear winner: %w", err)
	}
	db.publish(ctx, storeevents.OpUpdate, buzz)
	return buzz, nil
}

func (db *BuzzDBImpl) publish(ctx context.Context, op storeevents.Op, buzz *gametypes.Buzz) {
	if db.Events == nil {
		return
	}
	payload := storeevents.BuzzChangePayloadV1{Op: op, New: *buzz}
	if err := storeevents.Publish(ctx, db.Events, storeevents.BuzzSubject(buzz.RoomID), payload); err != nil {
		slog.WarnContext(ctx, "Failed to publish buzz change", slog.Any("error", err))
	}
}
