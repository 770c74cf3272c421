package gameservice

import (
	"context"

	"github.com/google/uuid"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// BuzzResult reports the outcome of one buzz attempt.
type BuzzResult struct {
	Won    bool                 `json:"won"`
	Winner sharedtypes.PlayerID `json:"winner"`
}

// Buzz claims the floor for the current round. The claim is resolved against
// the store, not the local projection: the buzz row is inserted first, then
// every buzz for the round is ranked by store-assigned (buzzed_at, seq) and
// only the head is promoted. Two players buzzing within the same millisecond
// therefore resolve identically on every client.
func (s *GameService) Buzz(ctx context.Context) (GameOperationResult, error) {
	return s.serviceWrapper(ctx, "Buzz", func(ctx context.Context) (GameOperationResult, error) {
		s.mu.Lock()
		status := s.state.Status
		songID := s.state.CurrentSongID
		s.mu.Unlock()

		if status != gametypes.GameStatusPlaying {
			s.metrics.RecordBuzzOutcome(ctx, "rejected")
			return failure(ReasonCannotBuzzNow), nil
		}
		if songID == nil {
			s.metrics.RecordBuzzOutcome(ctx, "rejected")
			return failure(ReasonNoSong), nil
		}

		// Fast path: a winner may already exist that the feed has not
		// delivered yet.
		winner, err := s.buzzes.GetWinningBuzz(ctx, s.roomID, *songID)
		if err != nil {
			return GameOperationResult{}, err
		}
		if winner != nil {
			s.observeWinner(winner)
			s.metrics.RecordBuzzOutcome(ctx, "lost")
			return failure(ReasonSomeoneBuzzed), nil
		}

		own, err := s.buzzes.GetPlayerBuzz(ctx, s.roomID, *songID, s.playerID)
		if err != nil {
			return GameOperationResult{}, err
		}
		if own != nil {
			s.metrics.RecordBuzzOutcome(ctx, "duplicate")
			return failure(ReasonAlreadyBuzzed), nil
		}

		buzz := &gametypes.Buzz{
			ID:       uuid.NewString(),
			RoomID:   s.roomID,
			PlayerID: s.playerID,
			SongID:   *songID,
		}
		if err := s.buzzes.CreateBuzz(ctx, buzz); err != nil {
			return GameOperationResult{}, err
		}

		return s.resolveBuzz(ctx, *songID, buzz)
	})
}

// resolveBuzz decides the round winner after our buzz row landed. The ranking
// is recomputed from the store so concurrent buzzers all agree, and the
// promotion itself is conditional, so at most one buzz per round ever wins.
func (s *GameService) resolveBuzz(ctx context.Context, songID sharedtypes.SongID, own *gametypes.Buzz) (GameOperationResult, error) {
	buzzes, err := s.buzzes.ListBuzzes(ctx, s.roomID, songID)
	if err != nil {
		return GameOperationResult{}, err
	}
	if len(buzzes) == 0 {
		// Our insert just succeeded, so an empty list means the read raced a
		// round change. Treat as lost.
		s.metrics.RecordBuzzOutcome(ctx, "lost")
		return failure(ReasonSomeoneBuzzed), nil
	}

	head := buzzes[0]
	promoted, err := s.buzzes.MarkWinner(ctx, head.ID)
	if err != nil {
		return GameOperationResult{}, err
	}
	if promoted == nil {
		// Another resolver got there first; fetch who actually won.
		promoted, err = s.buzzes.GetWinningBuzz(ctx, s.roomID, songID)
		if err != nil {
			return GameOperationResult{}, err
		}
		if promoted == nil {
			return failure(ReasonSomeoneBuzzed), nil
		}
	}

	s.observeWinner(promoted)

	won := promoted.PlayerID == s.playerID
	if won {
		s.metrics.RecordBuzzOutcome(ctx, "won")
	} else {
		s.metrics.RecordBuzzOutcome(ctx, "lost")
		s.logger.Debug("Lost the buzz race",
			attr.RoomID("room_id", s.roomID),
			attr.PlayerID("winner_id", promoted.PlayerID),
		)
	}
	return success(BuzzResult{Won: won, Winner: promoted.PlayerID}), nil
}

// observeWinner folds a store-confirmed winner into the projection ahead of
// the feed event carrying the same fact.
func (s *GameService) observeWinner(winner *gametypes.Buzz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentSongID == nil || winner.SongID != *s.state.CurrentSongID {
		return
	}
	s.winner = winner
	s.recomputeLocked()
}
