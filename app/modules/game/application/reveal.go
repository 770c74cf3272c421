package gameservice

import (
	"context"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
)

// Reveal closes the current round without a verdict: nobody gets the point
// and the answer is shown. Host only. The recap entry carries a winner only
// when a buzz is still standing unjudged; a round where nobody buzzed is
// recorded as unanswered.
func (s *GameService) Reveal(ctx context.Context) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "Reveal", func(ctx context.Context) (GameOperationResult, error) {
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
		if status != gametypes.GameStatusPlaying && status != gametypes.GameStatusBuzzed {
			s.mu.Unlock()
			return failure(ReasonCannotReveal), nil
		}
		var standing *gametypes.RoundWinner
		if s.winner != nil {
			standing = s.standingBuzzerLocked(room)
		}
		s.revealed = true
		entry := s.appendHistoryLocked(*room.CurrentSongID, standing, false)
		s.recomputeLocked()
		s.mu.Unlock()

		if payload, err := storeevents.EncodeSignal(storeevents.SignalReveal, storeevents.RevealSignalV1{
			RoomID: s.roomID,
			SongID: *room.CurrentSongID,
		}); err == nil {
			s.broadcastSignal(ctx, payload)
		}

		s.logger.Info("Round revealed without a verdict",
			attr.RoomID("room_id", s.roomID),
			attr.SongID("song_id", *room.CurrentSongID),
		)
		return success(entry), nil
	})
}

// standingBuzzerLocked describes the current winning buzz for the recap when
// the round closes without a verdict. Callers hold s.mu.
func (s *GameService) standingBuzzerLocked(room *roomtypes.Room) *gametypes.RoundWinner {
	winner := &gametypes.RoundWinner{PlayerID: s.winner.PlayerID}
	if player, ok := s.playersByID[s.winner.PlayerID]; ok {
		winner.Nickname = player.Nickname
		winner.Avatar = player.Avatar
	}
	if room.CurrentSongStartedAt != nil {
		if millis := s.winner.BuzzedAt.Sub(*room.CurrentSongStartedAt).Milliseconds(); millis > 0 {
			winner.BuzzMillis = millis
		}
	}
	return winner
}
