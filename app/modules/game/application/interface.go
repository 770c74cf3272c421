package gameservice

import (
	"context"

	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// Service is the multiplayer round orchestrator surface used by the API
// layer and the host-migration supervisor.
type Service interface {
	Run(ctx context.Context) error
	Reconcile(ctx context.Context) error
	State() MultiplayerGameState
	Players() map[sharedtypes.PlayerID]roomtypes.Player

	Buzz(ctx context.Context) (GameOperationResult, error)
	Validate(ctx context.Context, correct bool) (GameOperationResult, error)
	StartGame(ctx context.Context, songID sharedtypes.SongID) (GameOperationResult, error)
	NextSong(ctx context.Context, songID sharedtypes.SongID) (GameOperationResult, error)
	Reveal(ctx context.Context) (GameOperationResult, error)
	Pause(ctx context.Context) (GameOperationResult, error)
	Resume(ctx context.Context) (GameOperationResult, error)
	EndGame(ctx context.Context) (GameOperationResult, error)
}

var _ Service = (*GameService)(nil)
