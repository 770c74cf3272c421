package gameservice

import (
	"context"
	"time"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// NextSongResult reports the round the host just opened.
type NextSongResult struct {
	SongID    sharedtypes.SongID `json:"song_id"`
	StartedAt time.Time          `json:"started_at"`
}

// StartGame moves the room from waiting into playing and opens the first
// round. Host only.
func (s *GameService) StartGame(ctx context.Context, songID sharedtypes.SongID) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "StartGame", func(ctx context.Context) (GameOperationResult, error) {
		isHost, room, err := s.isHost(ctx)
		if err != nil {
			return GameOperationResult{}, err
		}
		if !isHost {
			return failure(ReasonNotHost), nil
		}
		if room.Status != roomtypes.RoomStatusWaiting {
			return failure(ReasonNothingToDo), nil
		}
		if _, err := s.rooms.UpdateStatus(ctx, s.roomID, roomtypes.RoomStatusPlaying); err != nil {
			return GameOperationResult{}, err
		}
		return s.openRound(ctx, songID)
	})
}

// NextSong closes the current round and opens the next one. Host only. The
// round start is stamped slightly in the future so every client has a preload
// window, and the authoritative start announcement comes from the scheduler.
func (s *GameService) NextSong(ctx context.Context, songID sharedtypes.SongID) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "NextSong", func(ctx context.Context) (GameOperationResult, error) {
		isHost, room, err := s.isHost(ctx)
		if err != nil {
			return GameOperationResult{}, err
		}
		if !isHost {
			return failure(ReasonNotHost), nil
		}
		if room.Status != roomtypes.RoomStatusPlaying {
			return failure(ReasonNothingToDo), nil
		}
		return s.openRound(ctx, songID)
	})
}

func (s *GameService) openRound(ctx context.Context, songID sharedtypes.SongID) (GameOperationResult, error) {
	startedAt := time.Now().Add(RoundStartLookahead).UTC()
	room, err := s.rooms.SetCurrentSong(ctx, s.roomID, songID, startedAt)
	if err != nil {
		return GameOperationResult{}, err
	}

	s.mu.Lock()
	s.room = room
	s.winner = nil
	s.revealed = false
	s.pausedFrom = ""
	s.state.CurrentSong = nil
	s.state.CurrentSongID = room.CurrentSongID
	s.state.CurrentSongStartedAt = room.CurrentSongStartedAt
	s.appendPlayedLocked(songID)
	s.recomputeLocked()
	s.mu.Unlock()

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleRoundStart(ctx, s.roomID, songID, startedAt); err != nil {
			// Playback still starts from the stamped row; only the
			// broadcast announcement is lost.
			s.logger.Warn("Failed to schedule round start",
				attr.RoomID("room_id", s.roomID),
				attr.SongID("song_id", songID),
				attr.Error(err),
			)
		}
	}

	s.refreshRound(ctx, songID)

	s.logger.Info("Round opened",
		attr.RoomID("room_id", s.roomID),
		attr.SongID("song_id", songID),
	)
	return success(NextSongResult{SongID: songID, StartedAt: startedAt}), nil
}
