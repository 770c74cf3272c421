package roomservice

import (
	"context"
	"strings"

	"github.com/google/uuid"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// CreateRoomInput carries everything needed to open a new room.
type CreateRoomInput struct {
	HostNickname string             `json:"host_nickname"`
	Settings     roomtypes.Settings `json:"settings"`
}

// CreateRoomResult is returned to the creating client, who becomes host.
type CreateRoomResult struct {
	Room *roomtypes.Room   `json:"room"`
	Host *roomtypes.Player `json:"host"`
}

// CreateRoom opens a waiting room with a fresh collision-checked join code
// and seats the creator as host.
func (s *RoomService) CreateRoom(ctx context.Context, input CreateRoomInput) (RoomOperationResult, error) {
	return s.serviceWrapper(ctx, "CreateRoom", func(ctx context.Context) (RoomOperationResult, error) {
		nickname := strings.TrimSpace(input.HostNickname)
		if nickname == "" || len([]rune(nickname)) > roomtypes.MaxNicknameLength {
			return failure(ReasonInvalidNickname), nil
		}

		code, err := s.allocateJoinCode(ctx)
		if err != nil {
			return RoomOperationResult{}, err
		}
		if code == "" {
			return failure(ReasonCodeExhausted), nil
		}

		hostID := sharedtypes.PlayerID(uuid.NewString())
		room := &roomtypes.Room{
			ID:       sharedtypes.RoomID(uuid.NewString()),
			JoinCode: code,
			HostID:   hostID,
			Status:   roomtypes.RoomStatusWaiting,
			Settings: input.Settings,
		}
		if err := s.rooms.CreateRoom(ctx, room); err != nil {
			return RoomOperationResult{}, err
		}

		host := &roomtypes.Player{
			ID:       hostID,
			RoomID:   room.ID,
			Nickname: nickname,
			Avatar:   roomtypes.AvatarPool[0],
			IsHost:   true,
		}
		if err := s.players.CreatePlayer(ctx, host); err != nil {
			return RoomOperationResult{}, err
		}

		s.logger.Info("Room created",
			attr.RoomID("room_id", room.ID),
			attr.String("join_code", room.JoinCode),
		)
		return success(CreateRoomResult{Room: room, Host: host}), nil
	})
}

// allocateJoinCode rolls codes until one is unused. Returns "" when every
// attempt collided.
func (s *RoomService) allocateJoinCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code, err := roomtypes.NewJoinCode()
		if err != nil {
			return "", err
		}
		existing, err := s.rooms.GetRoomByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", nil
}
