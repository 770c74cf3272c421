package gameservice

import (
	"context"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// ValidateResult reports the host's verdict on the winning buzz.
type ValidateResult struct {
	Correct bool                         `json:"correct"`
	Winner  *gametypes.RoundWinner       `json:"winner,omitempty"`
	Entry   *gametypes.RoundHistoryEntry `json:"entry,omitempty"`
}

// Validate records the host's verdict on the current winning buzz. A correct
// answer scores the winner and closes the round into reveal; an incorrect one
// clears the winner flag so the floor reopens for everyone else. A verdict is
// only accepted while the round is open: once it is revealed, paused or ended
// the call fails, so a repeated verdict can never score the same buzz twice.
func (s *GameService) Validate(ctx context.Context, correct bool) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "Validate", func(ctx context.Context) (GameOperationResult, error) {
		isHost, room, err := s.isHost(ctx)
		if err != nil {
			return GameOperationResult{}, err
		}
		if !isHost {
			return failure(ReasonNotHost), nil
		}
		if room.CurrentSongID == nil {
			return failure(ReasonNoSong), nil
		}

		s.mu.Lock()
		status := s.state.Status
		s.mu.Unlock()
		if status != gametypes.GameStatusPlaying && status != gametypes.GameStatusBuzzed {
			return failure(ReasonCannotValidate), nil
		}

		winner, err := s.buzzes.GetWinningBuzz(ctx, s.roomID, *room.CurrentSongID)
		if err != nil {
			return GameOperationResult{}, err
		}
		if winner == nil {
			return failure(ReasonNoWinningBuzz), nil
		}

		if !correct {
			cleared, err := s.buzzes.ClearWinner(ctx, winner.ID)
			if err != nil {
				return GameOperationResult{}, err
			}
			s.mu.Lock()
			if s.winner != nil && s.winner.ID == cleared.ID {
				s.winner = nil
				s.recomputeLocked()
			}
			s.mu.Unlock()
			s.logger.Info("Winning buzz rejected, floor reopened",
				attr.RoomID("room_id", s.roomID),
				attr.PlayerID("player_id", cleared.PlayerID),
			)
			return success(ValidateResult{Correct: false}), nil
		}

		scored, err := s.players.IncrementScore(ctx, winner.PlayerID)
		if err != nil {
			return GameOperationResult{}, err
		}

		// Buzz speed relative to the authoritative round start. Both stamps
		// come from the store clock; a negative delta means the player beat
		// the scheduled start and is clamped to zero.
		var buzzMillis int64
		if room.CurrentSongStartedAt != nil {
			buzzMillis = winner.BuzzedAt.Sub(*room.CurrentSongStartedAt).Milliseconds()
			if buzzMillis < 0 {
				buzzMillis = 0
			}
		}
		roundWinner := &gametypes.RoundWinner{
			PlayerID:   scored.ID,
			Nickname:   scored.Nickname,
			Avatar:     scored.Avatar,
			BuzzMillis: buzzMillis,
		}

		s.mu.Lock()
		s.revealed = true
		entry := s.appendHistoryLocked(*room.CurrentSongID, roundWinner, true)
		s.recomputeLocked()
		s.mu.Unlock()

		s.logger.Info("Winning buzz validated",
			attr.RoomID("room_id", s.roomID),
			attr.PlayerID("player_id", scored.ID),
			attr.Int64("buzz_millis", buzzMillis),
		)
		return success(ValidateResult{Correct: true, Winner: roundWinner, Entry: &entry}), nil
	})
}

// appendHistoryLocked records one finished round in the recap. Callers hold
// s.mu. Song metadata falls back to blank when the catalog lookup never
// completed; the recap tolerates that.
func (s *GameService) appendHistoryLocked(songID sharedtypes.SongID, winner *gametypes.RoundWinner, wasCorrect bool) gametypes.RoundHistoryEntry {
	entry := gametypes.RoundHistoryEntry{
		RoundNumber: len(s.state.RoundHistory) + 1,
		SongID:      songID,
		Winner:      winner,
		WasCorrect:  wasCorrect,
	}
	if s.state.CurrentSong != nil && s.state.CurrentSong.ID == songID {
		entry.Title = s.state.CurrentSong.Title
		entry.Artist = s.state.CurrentSong.Artist
	}
	s.state.RoundHistory = append(s.state.RoundHistory, entry)
	return entry
}
