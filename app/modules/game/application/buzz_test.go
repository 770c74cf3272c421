package gameservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/testutils"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

type fakeCatalog struct {
	GetSongFunc func(ctx context.Context, id sharedtypes.SongID) (*gametypes.Song, error)
}

func (f *fakeCatalog) GetSong(ctx context.Context, id sharedtypes.SongID) (*gametypes.Song, error) {
	if f.GetSongFunc != nil {
		return f.GetSongFunc(ctx, id)
	}
	return &gametypes.Song{ID: id, Title: "Title " + string(id), Artist: "Artist " + string(id)}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *testutils.MemStore, roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID) *GameService {
	t.Helper()
	return NewGameService(roomID, playerID, Deps{
		Rooms:   store,
		Players: store,
		Buzzes:  store,
		Catalog: &fakeCatalog{},
		Logger:  testLogger(),
	})
}

// seedRoundInProgress creates a playing room with an open round and the given
// players, host first.
func seedRoundInProgress(t *testing.T, store *testutils.MemStore, roomID sharedtypes.RoomID, songID sharedtypes.SongID, playerIDs ...sharedtypes.PlayerID) {
	t.Helper()
	ctx := context.Background()
	startedAt := time.Now().Add(-10 * time.Second)
	require.NoError(t, store.CreateRoom(ctx, &roomtypes.Room{
		ID:       roomID,
		JoinCode: "ABC234",
		HostID:   playerIDs[0],
		Status:   roomtypes.RoomStatusPlaying,
	}))
	for i, id := range playerIDs {
		require.NoError(t, store.CreatePlayer(ctx, &roomtypes.Player{
			ID:       id,
			RoomID:   roomID,
			Nickname: fmt.Sprintf("player-%d", i),
			Avatar:   "🎵",
			IsHost:   i == 0,
		}))
	}
	_, err := store.SetCurrentSong(ctx, roomID, songID, startedAt)
	require.NoError(t, err)
}

func TestConcurrentBuzzExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")

	const contenders = 8
	ids := make([]sharedtypes.PlayerID, contenders)
	for i := range ids {
		ids[i] = sharedtypes.PlayerID(fmt.Sprintf("player-%d", i))
	}
	seedRoundInProgress(t, store, roomID, songID, ids...)

	services := make([]*GameService, contenders)
	for i, id := range ids {
		services[i] = newTestService(t, store, roomID, id)
		require.NoError(t, services[i].Reconcile(ctx))
	}

	results := make([]BuzzResult, contenders)
	var wg sync.WaitGroup
	for i := range services {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := services[i].Buzz(ctx)
			if !assert.NoError(t, err) {
				return
			}
			if result.Success != nil {
				results[i] = result.Success.(BuzzResult)
			} else {
				// Losers that hit the fast path still learn the winner id is
				// pending; they carry the zero result.
				results[i] = BuzzResult{}
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	var winnerID sharedtypes.PlayerID
	for i, result := range results {
		if result.Won {
			winners++
			winnerID = ids[i]
		}
	}
	require.Equal(t, 1, winners, "exactly one contender must win")

	// Every client that resolved agrees on the same winner.
	for _, result := range results {
		if result.Winner != "" {
			assert.Equal(t, winnerID, result.Winner)
		}
	}

	// The winner is the head of the store's fairness order.
	buzzes, err := store.ListBuzzes(ctx, roomID, songID)
	require.NoError(t, err)
	require.NotEmpty(t, buzzes)
	assert.Equal(t, winnerID, buzzes[0].PlayerID)
	assert.True(t, buzzes[0].IsWinner)
	for _, buzz := range buzzes[1:] {
		assert.False(t, buzz.IsWinner)
	}
}

func TestBuzzTieBreaksOnSequence(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	// Pinned clock: every insert lands on the same wall instant, so ordering
	// falls through to the insert sequence.
	pinned := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return pinned }

	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")
	seedRoundInProgress(t, store, roomID, songID, "host", "p1", "p2")

	first := newTestService(t, store, roomID, "p1")
	second := newTestService(t, store, roomID, "p2")
	require.NoError(t, first.Reconcile(ctx))
	require.NoError(t, second.Reconcile(ctx))

	result1, err := first.Buzz(ctx)
	require.NoError(t, err)
	require.NotNil(t, result1.Success)
	assert.True(t, result1.Success.(BuzzResult).Won)

	result2, err := second.Buzz(ctx)
	require.NoError(t, err)
	require.NotNil(t, result2.Failure)
	assert.Equal(t, ReasonSomeoneBuzzed, result2.Failure.Reason)

	assert.Equal(t, gametypes.GameStatusBuzzed, first.State().Status)
	assert.Equal(t, gametypes.GameStatusBuzzed, second.State().Status)
}

func TestBuzzRejectedOutsidePlaying(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")

	require.NoError(t, store.CreateRoom(ctx, &roomtypes.Room{
		ID: roomID, JoinCode: "ZZZ999", HostID: "host", Status: roomtypes.RoomStatusWaiting,
	}))
	require.NoError(t, store.CreatePlayer(ctx, &roomtypes.Player{ID: "p1", RoomID: roomID, Nickname: "p1"}))

	svc := newTestService(t, store, roomID, "p1")
	require.NoError(t, svc.Reconcile(ctx))

	result, err := svc.Buzz(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ReasonCannotBuzzNow, result.Failure.Reason)

	buzzes, err := store.ListBuzzes(ctx, roomID, "song-1")
	require.NoError(t, err)
	assert.Empty(t, buzzes, "a rejected buzz must not reach the store")
}

func TestRebuzzAfterRejectionIsDenied(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")
	seedRoundInProgress(t, store, roomID, songID, "host", "p1", "p2")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	rival := newTestService(t, store, roomID, "p2")
	for _, svc := range []*GameService{host, buzzer, rival} {
		require.NoError(t, svc.Reconcile(ctx))
	}

	result, err := buzzer.Buzz(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Success)

	verdict, err := host.Validate(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, verdict.Success)

	// The rejected buzzer is locked out of this round.
	require.NoError(t, buzzer.Reconcile(ctx))
	retry, err := buzzer.Buzz(ctx)
	require.NoError(t, err)
	require.NotNil(t, retry.Failure)
	assert.Equal(t, ReasonAlreadyBuzzed, retry.Failure.Reason)

	// The floor reopened for everyone else.
	require.NoError(t, rival.Reconcile(ctx))
	assert.Equal(t, gametypes.GameStatusPlaying, rival.State().Status)
	rivalResult, err := rival.Buzz(ctx)
	require.NoError(t, err)
	require.NotNil(t, rivalResult.Success)
	assert.True(t, rivalResult.Success.(BuzzResult).Won)
}

func TestValidateCorrectScoresWinnerAndReveals(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")
	seedRoundInProgress(t, store, roomID, songID, "host", "p1")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)

	verdict, err := host.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, verdict.Success)
	validated := verdict.Success.(ValidateResult)
	require.True(t, validated.Correct)
	require.NotNil(t, validated.Winner)
	assert.Equal(t, sharedtypes.PlayerID("p1"), validated.Winner.PlayerID)
	assert.GreaterOrEqual(t, validated.Winner.BuzzMillis, int64(0))

	scored, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.Score(1), scored.Score)

	state := host.State()
	assert.Equal(t, gametypes.GameStatusReveal, state.Status)
	require.Len(t, state.RoundHistory, 1)
	assert.Equal(t, 1, state.RoundHistory[0].RoundNumber)
	assert.True(t, state.RoundHistory[0].WasCorrect)
}

func TestValidateRequiresHost(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")
	seedRoundInProgress(t, store, roomID, songID, "host", "p1")

	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, buzzer.Reconcile(ctx))
	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)

	verdict, err := buzzer.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, verdict.Failure)
	assert.Equal(t, ReasonNotHost, verdict.Failure.Reason)
}

func TestValidateWithoutWinningBuzz(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	seedRoundInProgress(t, store, roomID, "song-1", "host")

	host := newTestService(t, store, roomID, "host")
	require.NoError(t, host.Reconcile(ctx))

	verdict, err := host.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, verdict.Failure)
	assert.Equal(t, ReasonNoWinningBuzz, verdict.Failure.Reason)
}

func TestRepeatedValidateScoresOnce(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")
	seedRoundInProgress(t, store, roomID, songID, "host", "p1")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)

	verdict, err := host.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, verdict.Success)

	// The round is closed into reveal; a second verdict is refused instead of
	// scoring the same buzz again.
	repeat, err := host.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, repeat.Failure)
	assert.Equal(t, ReasonCannotValidate, repeat.Failure.Reason)

	scored, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.Score(1), scored.Score)
	assert.Len(t, host.State().RoundHistory, 1)
}

func TestValidateWhilePausedIsDenied(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")
	seedRoundInProgress(t, store, roomID, songID, "host", "p1")

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err := buzzer.Buzz(ctx)
	require.NoError(t, err)

	paused, err := host.Pause(ctx)
	require.NoError(t, err)
	require.NotNil(t, paused.Success)

	verdict, err := host.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, verdict.Failure)
	assert.Equal(t, ReasonCannotValidate, verdict.Failure.Reason)

	unscored, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.Score(0), unscored.Score)
}

func TestBuzzMillisClampedToZero(t *testing.T) {
	ctx := context.Background()
	store := testutils.NewMemStore()
	roomID := sharedtypes.RoomID("room-1")
	songID := sharedtypes.SongID("song-1")

	require.NoError(t, store.CreateRoom(ctx, &roomtypes.Room{
		ID: roomID, JoinCode: "QQQ777", HostID: "host", Status: roomtypes.RoomStatusPlaying,
	}))
	require.NoError(t, store.CreatePlayer(ctx, &roomtypes.Player{ID: "host", RoomID: roomID, Nickname: "host", IsHost: true}))
	require.NoError(t, store.CreatePlayer(ctx, &roomtypes.Player{ID: "p1", RoomID: roomID, Nickname: "p1"}))
	// Round scheduled in the future; a buzz before the start must not report
	// a negative reaction time.
	_, err := store.SetCurrentSong(ctx, roomID, songID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	host := newTestService(t, store, roomID, "host")
	buzzer := newTestService(t, store, roomID, "p1")
	require.NoError(t, host.Reconcile(ctx))
	require.NoError(t, buzzer.Reconcile(ctx))

	_, err = buzzer.Buzz(ctx)
	require.NoError(t, err)

	verdict, err := host.Validate(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, verdict.Success)
	assert.Equal(t, int64(0), verdict.Success.(ValidateResult).Winner.BuzzMillis)
}
