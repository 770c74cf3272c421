package roomservice

import (
	"context"
	"strings"

	"github.com/google/uuid"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// JoinRoomInput identifies the room by its human-facing code.
type JoinRoomInput struct {
	JoinCode string `json:"join_code"`
	Nickname string `json:"nickname"`
}

// JoinRoomResult seats the new player and returns the current roster so the
// client can render the lobby immediately.
type JoinRoomResult struct {
	Room    *roomtypes.Room    `json:"room"`
	Player  *roomtypes.Player  `json:"player"`
	Players []roomtypes.Player `json:"players"`
}

// JoinRoom adds a player to an open room. Nicknames are bounded and unique
// per room; avatars come from the fixed pool, first free one wins.
func (s *RoomService) JoinRoom(ctx context.Context, input JoinRoomInput) (RoomOperationResult, error) {
	return s.serviceWrapper(ctx, "JoinRoom", func(ctx context.Context) (RoomOperationResult, error) {
		code := roomtypes.NormalizeJoinCode(input.JoinCode)
		if !roomtypes.ValidJoinCode(code) {
			return failure(ReasonInvalidCode), nil
		}
		nickname := strings.TrimSpace(input.Nickname)
		if nickname == "" || len([]rune(nickname)) > roomtypes.MaxNicknameLength {
			return failure(ReasonInvalidNickname), nil
		}

		room, err := s.rooms.GetRoomByCode(ctx, code)
		if err != nil {
			return RoomOperationResult{}, err
		}
		if room == nil {
			return failure(ReasonRoomNotFound), nil
		}
		if room.Status == roomtypes.RoomStatusEnded {
			return failure(ReasonRoomEnded), nil
		}

		roster, err := s.players.ListPlayers(ctx, room.ID)
		if err != nil {
			return RoomOperationResult{}, err
		}
		if len(roster) >= MaxPlayersPerRoom {
			return failure(ReasonRoomFull), nil
		}
		for _, existing := range roster {
			if strings.EqualFold(existing.Nickname, nickname) {
				return failure(ReasonNicknameTaken), nil
			}
		}

		player := &roomtypes.Player{
			ID:       sharedtypes.PlayerID(uuid.NewString()),
			RoomID:   room.ID,
			Nickname: nickname,
			Avatar:   pickAvatar(roster),
		}
		if err := s.players.CreatePlayer(ctx, player); err != nil {
			return RoomOperationResult{}, err
		}

		s.logger.Info("Player joined room",
			attr.RoomID("room_id", room.ID),
			attr.PlayerID("player_id", player.ID),
		)
		return success(JoinRoomResult{
			Room:    room,
			Player:  player,
			Players: append(roster, *player),
		}), nil
	})
}

// pickAvatar returns the first pool avatar nobody in the room holds. When the
// pool is exhausted the pool wraps, which duplicates avatars but never blocks
// a join.
func pickAvatar(roster []roomtypes.Player) string {
	taken := make(map[string]bool, len(roster))
	for _, player := range roster {
		taken[player.Avatar] = true
	}
	for _, avatar := range roomtypes.AvatarPool {
		if !taken[avatar] {
			return avatar
		}
	}
	return roomtypes.AvatarPool[len(roster)%len(roomtypes.AvatarPool)]
}
