package roomdb

import (
	"context"
	"time"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// RoomDB is the storage contract for rooms. Every mutation fans out a change
// event on the room's change-feed subject after the write commits.
type RoomDB interface {
	CreateRoom(ctx context.Context, room *roomtypes.Room) error
	GetRoom(ctx context.Context, roomID sharedtypes.RoomID) (*roomtypes.Room, error)
	// GetRoomByCode returns nil without error when no room matches.
	GetRoomByCode(ctx context.Context, joinCode string) (*roomtypes.Room, error)
	UpdateStatus(ctx context.Context, roomID sharedtypes.RoomID, status roomtypes.RoomStatus) (*roomtypes.Room, error)
	// SetCurrentSong starts a new round: sets the song and its authoritative
	// start instant.
	SetCurrentSong(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, startedAt time.Time) (*roomtypes.Room, error)
	// EndRoom marks the room ended and clears the current round.
	EndRoom(ctx context.Context, roomID sharedtypes.RoomID) (*roomtypes.Room, error)
	// TransferHost atomically reassigns host authority: room.host_id plus both
	// player is_host flags move in one transaction.
	TransferHost(ctx context.Context, roomID sharedtypes.RoomID, from, to sharedtypes.PlayerID) (*roomtypes.Room, error)
}

// PlayerDB is the storage contract for players.
type PlayerDB interface {
	CreatePlayer(ctx context.Context, player *roomtypes.Player) error
	GetPlayer(ctx context.Context, playerID sharedtypes.PlayerID) (*roomtypes.Player, error)
	// ListPlayers returns the room's players ordered by joined_at ascending,
	// the order host succession uses.
	ListPlayers(ctx context.Context, roomID sharedtypes.RoomID) ([]roomtypes.Player, error)
	DeletePlayer(ctx context.Context, playerID sharedtypes.PlayerID) error
	// IncrementScore adds one point. Host-gated by the orchestrator, not here.
	IncrementScore(ctx context.Context, playerID sharedtypes.PlayerID) (*roomtypes.Player, error)
}
