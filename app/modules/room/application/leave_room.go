package roomservice

import (
	"context"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// LeaveRoomResult reports what the departure did to the room.
type LeaveRoomResult struct {
	Room      *roomtypes.Room      `json:"room"`
	NewHostID sharedtypes.PlayerID `json:"new_host_id,omitempty"`
	Ended     bool                 `json:"ended"`
}

// LeaveRoom removes a player. A departing host hands the room to the
// earliest-joined remaining player; the last player out ends the room.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID) (RoomOperationResult, error) {
	return s.serviceWrapper(ctx, "LeaveRoom", func(ctx context.Context) (RoomOperationResult, error) {
		room, err := s.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return RoomOperationResult{}, err
		}
		player, err := s.players.GetPlayer(ctx, playerID)
		if err != nil || player.RoomID != roomID {
			return failure(ReasonNotInRoom), nil
		}

		wasHost := room.HostID == playerID

		// Hand off before deleting so the room never has a dangling host id.
		var newHostID sharedtypes.PlayerID
		if wasHost {
			roster, err := s.players.ListPlayers(ctx, roomID)
			if err != nil {
				return RoomOperationResult{}, err
			}
			for _, candidate := range roster {
				if candidate.ID != playerID {
					newHostID = candidate.ID
					break
				}
			}
			if newHostID != "" {
				room, err = s.rooms.TransferHost(ctx, roomID, playerID, newHostID)
				if err != nil {
					return RoomOperationResult{}, err
				}
			}
		}

		if err := s.players.DeletePlayer(ctx, playerID); err != nil {
			return RoomOperationResult{}, err
		}

		remaining, err := s.players.ListPlayers(ctx, roomID)
		if err != nil {
			return RoomOperationResult{}, err
		}
		ended := false
		if len(remaining) == 0 && room.Status != roomtypes.RoomStatusEnded {
			room, err = s.rooms.EndRoom(ctx, roomID)
			if err != nil {
				return RoomOperationResult{}, err
			}
			ended = true
		}

		s.logger.Info("Player left room",
			attr.RoomID("room_id", roomID),
			attr.PlayerID("player_id", playerID),
			attr.Bool("was_host", wasHost),
			attr.Bool("room_ended", ended),
		)
		return success(LeaveRoomResult{Room: room, NewHostID: newHostID, Ended: ended}), nil
	})
}

// RoomState is the lobby view: the room row plus its roster.
type RoomState struct {
	Room    *roomtypes.Room    `json:"room"`
	Players []roomtypes.Player `json:"players"`
}

// GetRoomState returns the lobby view for a join code.
func (s *RoomService) GetRoomState(ctx context.Context, joinCode string) (RoomOperationResult, error) {
	return s.serviceWrapper(ctx, "GetRoomState", func(ctx context.Context) (RoomOperationResult, error) {
		code := roomtypes.NormalizeJoinCode(joinCode)
		if !roomtypes.ValidJoinCode(code) {
			return failure(ReasonInvalidCode), nil
		}
		room, err := s.rooms.GetRoomByCode(ctx, code)
		if err != nil {
			return RoomOperationResult{}, err
		}
		if room == nil {
			return failure(ReasonRoomNotFound), nil
		}
		players, err := s.players.ListPlayers(ctx, room.ID)
		if err != nil {
			return RoomOperationResult{}, err
		}
		return success(RoomState{Room: room, Players: players}), nil
	})
}
