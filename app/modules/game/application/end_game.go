package gameservice

import (
	"context"
	"sort"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
)

// GameSummary is the final scoreboard handed to the recap exporter.
type GameSummary struct {
	Players      []roomtypes.Player            `json:"players"`
	RoundHistory []gametypes.RoundHistoryEntry `json:"round_history"`
}

// EndGame ends the room for everyone and returns the final standings, ordered
// by score descending with join order breaking ties. Host only.
func (s *GameService) EndGame(ctx context.Context) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "EndGame", func(ctx context.Context) (GameOperationResult, error) {
		isHost, room, err := s.isHost(ctx)
		if err != nil {
			return GameOperationResult{}, err
		}
		if !isHost {
			return failure(ReasonNotHost), nil
		}
		if room.Status == roomtypes.RoomStatusEnded {
			return failure(ReasonNothingToDo), nil
		}

		ended, err := s.rooms.EndRoom(ctx, s.roomID)
		if err != nil {
			return GameOperationResult{}, err
		}
		players, err := s.players.ListPlayers(ctx, s.roomID)
		if err != nil {
			return GameOperationResult{}, err
		}
		sort.SliceStable(players, func(i, j int) bool {
			return players[i].Score > players[j].Score
		})

		s.mu.Lock()
		s.room = ended
		s.winner = nil
		s.pausedFrom = ""
		s.revealed = false
		s.recomputeLocked()
		history := append([]gametypes.RoundHistoryEntry(nil), s.state.RoundHistory...)
		s.mu.Unlock()

		s.logger.Info("Game ended",
			attr.RoomID("room_id", s.roomID),
			attr.Int("players", len(players)),
			attr.Int("rounds", len(history)),
		)
		return success(GameSummary{Players: players, RoundHistory: history}), nil
	})
}
