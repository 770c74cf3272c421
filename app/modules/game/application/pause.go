package gameservice

import (
	"context"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
)

// Pause freezes playback locally and tells the room. Host only. Pause state
// never touches the store: a client that joins mid-pause simply derives the
// unpaused status from the rows and converges on the next round.
func (s *GameService) Pause(ctx context.Context) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "Pause", func(ctx context.Context) (GameOperationResult, error) {
		isHost, _, err := s.isHost(ctx)
		if err != nil {
			return GameOperationResult{}, err
		}
		if !isHost {
			return failure(ReasonNotHost), nil
		}

		s.mu.Lock()
		status := s.state.Status
		if status != gametypes.GameStatusPlaying && status != gametypes.GameStatusBuzzed {
			s.mu.Unlock()
			return failure(ReasonCannotPause), nil
		}
		s.pausedFrom = status
		s.recomputeLocked()
		s.mu.Unlock()

		s.announcePause(ctx, true)
		return success(gametypes.GameStatusPaused), nil
	})
}

// Resume returns to whatever status the game was paused from.
func (s *GameService) Resume(ctx context.Context) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "Resume", func(ctx context.Context) (GameOperationResult, error) {
		isHost, _, err := s.isHost(ctx)
		if err != nil {
			return GameOperationResult{}, err
		}
		if !isHost {
			return failure(ReasonNotHost), nil
		}

		s.mu.Lock()
		if s.pausedFrom == "" {
			s.mu.Unlock()
			return failure(ReasonNothingToDo), nil
		}
		s.pausedFrom = ""
		s.recomputeLocked()
		status := s.state.Status
		s.mu.Unlock()

		s.announcePause(ctx, false)
		return success(status), nil
	})
}

func (s *GameService) announcePause(ctx context.Context, paused bool) {
	payload, err := storeevents.EncodeSignal(storeevents.SignalPause, storeevents.PauseSignalV1{
		RoomID: s.roomID,
		Paused: paused,
	})
	if err != nil {
		s.logger.Warn("Failed to encode pause signal", attr.Error(err))
		return
	}
	s.broadcastSignal(ctx, payload)
}
