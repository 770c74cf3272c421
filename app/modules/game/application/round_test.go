package gameservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/testutils"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

func TestStartGameOpensFirstRound(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")

	require.NoError(t, store.CreateRoom(ctx, &roomtypes.Room{
		ID: roomID, JoinCode: "AAA222", HostID: "host", Status: roomtypes.RoomStatusWaiting,
	}))
	require.NoError(t, store.CreatePlayer(ctx, &roomtypes.Player{ID: "host", RoomID: roomID, Nickname: "host", IsHost: true}))

	host := newTestService(t, store, roomID, "host")
	require.NoError(t, host.Reconcile(ctx))

	result, err := host.StartGame(ctx, "song-1")
	require.NoError(t, err)
	require.NotNil(t, result.Success)

	room, err := store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, roomtypes.RoomStatusPlaying, room.Status)
	require.NotNil(t, room.CurrentSongID)
	assert.Equal(t, sharedtypes.SongID("song-1"), *room.CurrentSongID)
	require.NotNil(t, room.CurrentSongStartedAt)

	state := host.State()
	assert.Equal(t, gametypes.GameStatusPlaying, state.Status)
	assert.Equal(t, []sharedtypes.SongID{"song-1"}, state.PlayedSongIDs)
}

func TestStartGameRejectedWhenAlreadyPlaying(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host")

	host := newTestService(t, store, roomID, "host")
	require.NoError(t, host.Reconcile(ctx))

	result, err := host.StartGame(ctx, "song-2")
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ReasonNothingToDo, result.Failure.Reason)
}

func TestNextSongResetsRoundState(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host", "p1")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)
	_, err = host.Validate(ctx, true)
	require.NoError(t, err)
	require.Equal(t, gametypes.GameStatusReveal, host.State().Status)

	result, err := host.NextSong(ctx, "song-2")
	require.NoError(t, err)
	require.NotNil(t, result.Success)

	state := host.State()
	assert.Equal(t, gametypes.GameStatusPlaying, state.Status)
	require.NotNil(t, state.CurrentSongID)
	assert.Equal(t, sharedtypes.SongID("song-2"), *state.CurrentSongID)
	assert.Equal(t, []sharedtypes.SongID{"song-1", "song-2"}, state.PlayedSongIDs)
	// The recap keeps the finished round.
	require.Len(t, state.RoundHistory, 1)
	assert.Equal(t, sharedtypes.SongID("song-1"), state.RoundHistory[0].SongID)

	// The previous round's buzz does not leak into the new round.
	winner, err := store.GetWinningBuzz(ctx, roomID, "song-2")
	require.NoError(t, err)
	assert.Nil(t, winner)
}

func TestNextSongRequiresHost(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host", "p1")

	player := newTestService(t, store, roomID, "p1")
	require.NoError(t, player.Reconcile(ctx))

	result, err := player.NextSong(ctx, "song-2")
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ReasonNotHost, result.Failure.Reason)
}

func TestRevealWithoutBuzzRecordsUnansweredRound(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host")

	host := newTestService(t, store, roomID, "host")
	require.NoError(t, host.Reconcile(ctx))

	result, err := host.Reveal(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Success)

	state := host.State()
	assert.Equal(t, gametypes.GameStatusReveal, state.Status)
	require.Len(t, state.RoundHistory, 1)
	assert.Nil(t, state.RoundHistory[0].Winner)
	assert.False(t, state.RoundHistory[0].WasCorrect)

	// A second reveal has nothing left to close.
	again, err := host.Reveal(ctx)
	require.NoError(t, err)
	require.NotNil(t, again.Failure)
	assert.Equal(t, ReasonCannotReveal, again.Failure.Reason)
}

func TestRevealWithStandingBuzzKeepsBuzzerInRecap(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host", "p1")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)
	require.NoError(t, host.Reconcile(ctx))
	require.Equal(t, gametypes.GameStatusBuzzed, host.State().Status)

	result, err := host.Reveal(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Success)

	// The unjudged buzzer stays in the recap, unscored.
	state := host.State()
	require.Len(t, state.RoundHistory, 1)
	entry := state.RoundHistory[0]
	require.NotNil(t, entry.Winner)
	assert.Equal(t, sharedtypes.PlayerID("p1"), entry.Winner.PlayerID)
	assert.False(t, entry.WasCorrect)

	unscored, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.Score(0), unscored.Score)
}

func TestPauseResumeRestoresPriorStatus(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host", "p1")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)
	require.NoError(t, host.Reconcile(ctx))
	require.Equal(t, gametypes.GameStatusBuzzed, host.State().Status)

	result, err := host.Pause(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Success)
	assert.Equal(t, gametypes.GameStatusPaused, host.State().Status)

	resumed, err := host.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, resumed.Success)
	assert.Equal(t, gametypes.GameStatusBuzzed, host.State().Status)

	// Resume with nothing paused is rejected.
	again, err := host.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, again.Failure)
	assert.Equal(t, ReasonNothingToDo, again.Failure.Reason)
}

func TestPauseRequiresHost(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host", "p1")

	player := newTestService(t, store, roomID, "p1")
	require.NoError(t, player.Reconcile(ctx))

	result, err := player.Pause(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ReasonNotHost, result.Failure.Reason)
}

func TestEndGameReturnsStandings(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host", "p1", "p2")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)
	_, err = host.Validate(ctx, true)
	require.NoError(t, err)

	result, err := host.EndGame(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Success)

	summary := result.Success.(GameSummary)
	require.Len(t, summary.Players, 3)
	assert.Equal(t, sharedtypes.PlayerID("p1"), summary.Players[0].ID)
	assert.Equal(t, sharedtypes.Score(1), summary.Players[0].Score)
	require.Len(t, summary.RoundHistory, 1)

	assert.Equal(t, gametypes.GameStatusEnded, host.State().Status)

	// Ending twice is a no-op failure.
	again, err := host.EndGame(ctx)
	require.NoError(t, err)
	require.NotNil(t, again.Failure)
	assert.Equal(t, ReasonNothingToDo, again.Failure.Reason)
}
