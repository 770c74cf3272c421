package migration

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julienbrs/blindtest-sub000/app/modules/game/presence"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	"github.com/julienbrs/blindtest-sub000/app/shared/testutils"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

const testGrace = 50 * time.Millisecond

type migrationFixture struct {
	store   *testutils.MemStore
	tracker *presence.MemoryTracker
	roomID  sharedtypes.RoomID
}

// newMigrationFixture seeds a playing room with players H (host), A, B in
// join order, everyone online.
func newMigrationFixture(t *testing.T) *migrationFixture {
	t.Helper()
	ctx := context.Background()
	store := testutils.NewMemStore()
	tracker := presence.NewMemoryTracker()
	roomID := sharedtypes.RoomID("room-1")

	require.NoError(t, store.CreateRoom(ctx, &roomtypes.Room{
		ID: roomID, JoinCode: "HHH888", HostID: "H", Status: roomtypes.RoomStatusPlaying,
	}))
	for i, id := range []sharedtypes.PlayerID{"H", "A", "B"} {
		require.NoError(t, store.CreatePlayer(ctx, &roomtypes.Player{
			ID: id, RoomID: roomID, Nickname: string(id), IsHost: i == 0,
		}))
		tracker.SetOnline(roomID, id, true)
	}
	return &migrationFixture{store: store, tracker: tracker, roomID: roomID}
}

func (f *migrationFixture) startSupervisor(t *testing.T, ctx context.Context, selfID sharedtypes.PlayerID, migrations *atomic.Int32) {
	t.Helper()
	sup := NewSupervisor(f.roomID, selfID, f.store, f.store, f.tracker,
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	sup.GracePeriod = testGrace
	if migrations != nil {
		sup.OnMigrated = func(sharedtypes.PlayerID) { migrations.Add(1) }
	}
	go func() { _ = sup.Run(ctx) }()
}

func TestEarliestJoinedSuccessorTakesOver(t *testing.T) {
	f := newMigrationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var migrations atomic.Int32
	f.startSupervisor(t, ctx, "A", &migrations)
	f.startSupervisor(t, ctx, "B", &migrations)

	f.tracker.SetOnline(f.roomID, "H", false)

	require.Eventually(t, func() bool {
		room, err := f.store.GetRoom(context.Background(), f.roomID)
		return err == nil && room.HostID == "A"
	}, time.Second, 5*time.Millisecond, "A joined first and must inherit the room")

	// B never migrates, even well past its own grace period.
	time.Sleep(3 * testGrace)
	room, err := f.store.GetRoom(context.Background(), f.roomID)
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.PlayerID("A"), room.HostID)
	assert.Equal(t, int32(1), migrations.Load())

	oldHost, err := f.store.GetPlayer(context.Background(), "H")
	require.NoError(t, err)
	assert.False(t, oldHost.IsHost)
	newHost, err := f.store.GetPlayer(context.Background(), "A")
	require.NoError(t, err)
	assert.True(t, newHost.IsHost)
}

func TestHostReturningWithinGraceCancelsTakeover(t *testing.T) {
	f := newMigrationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var migrations atomic.Int32
	f.startSupervisor(t, ctx, "A", &migrations)

	f.tracker.SetOnline(f.roomID, "H", false)
	time.Sleep(testGrace / 2)
	f.tracker.SetOnline(f.roomID, "H", true)

	time.Sleep(3 * testGrace)
	room, err := f.store.GetRoom(context.Background(), f.roomID)
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.PlayerID("H"), room.HostID, "a blink must not move host authority")
	assert.Equal(t, int32(0), migrations.Load())
}

func TestSuccessionSkipsOfflinePlayers(t *testing.T) {
	f := newMigrationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var migrations atomic.Int32
	f.startSupervisor(t, ctx, "A", &migrations)
	f.startSupervisor(t, ctx, "B", &migrations)

	// A drops first, then the host: B is the only eligible successor.
	f.tracker.SetOnline(f.roomID, "A", false)
	f.tracker.SetOnline(f.roomID, "H", false)

	require.Eventually(t, func() bool {
		room, err := f.store.GetRoom(context.Background(), f.roomID)
		return err == nil && room.HostID == "B"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), migrations.Load())
}

func TestNoTakeoverInEndedRoom(t *testing.T) {
	f := newMigrationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.store.EndRoom(context.Background(), f.roomID)
	require.NoError(t, err)

	var migrations atomic.Int32
	f.startSupervisor(t, ctx, "A", &migrations)
	f.tracker.SetOnline(f.roomID, "H", false)

	time.Sleep(3 * testGrace)
	room, err := f.store.GetRoom(context.Background(), f.roomID)
	require.NoError(t, err)
	assert.Equal(t, sharedtypes.PlayerID("H"), room.HostID)
	assert.Equal(t, int32(0), migrations.Load())
}
