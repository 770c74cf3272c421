package roomservice

import (
	"context"

	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// Service is the room lifecycle surface used by the API layer.
type Service interface {
	CreateRoom(ctx context.Context, input CreateRoomInput) (RoomOperationResult, error)
	JoinRoom(ctx context.Context, input JoinRoomInput) (RoomOperationResult, error)
	LeaveRoom(ctx context.Context, roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID) (RoomOperationResult, error)
	GetRoomState(ctx context.Context, joinCode string) (RoomOperationResult, error)
}

var _ Service = (*RoomService)(nil)
