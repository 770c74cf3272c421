package gamedb

import (
	"context"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// BuzzDB is the storage contract the buzz-resolution protocol runs against.
// The store, not the client, assigns BuzzedAt and Seq on insert; ListBuzzes
// returns rows in (buzzed_at, seq) ascending order, which is the authoritative
// fairness order. The implementation must be read-after-write consistent: a
// ListBuzzes issued after CreateBuzz returns must observe the inserted row.
type BuzzDB interface {
	// CreateBuzz inserts the buzz and fills in the store-assigned BuzzedAt and
	// Seq on the passed model.
	CreateBuzz(ctx context.Context, buzz *gametypes.Buzz) error
	// GetWinningBuzz returns nil without error when the round has no winner.
	GetWinningBuzz(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID) (*gametypes.Buzz, error)
	// GetPlayerBuzz returns nil without error when the player has not buzzed
	// this round.
	GetPlayerBuzz(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, playerID sharedtypes.PlayerID) (*gametypes.Buzz, error)
	// ListBuzzes returns the round's contenders in fairness order. Invalidated
	// buzzes are excluded.
	ListBuzzes(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID) ([]gametypes.Buzz, error)
	// MarkWinner promotes the given buzz, but only if it is not invalidated and
	// its round has no winner yet: the guard and the flag move in one atomic
	// statement, so concurrent resolvers can never produce two winners. Returns
	// nil without error when the promotion was refused.
	MarkWinner(ctx context.Context, buzzID string) (*gametypes.Buzz, error)
	// ClearWinner demotes and invalidates the given buzz without deleting it,
	// so the player stays ineligible for the rest of the round.
	ClearWinner(ctx context.Context, buzzID string) (*gametypes.Buzz, error)
}
