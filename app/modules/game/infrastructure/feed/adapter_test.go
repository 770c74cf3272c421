package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julienbrs/blindtest-sub000/app/eventbus"
	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

func startTestAdapter(t *testing.T, roomID sharedtypes.RoomID) (eventbus.EventBus, *Adapter) {
	t.Helper()
	bus := eventbus.NewInMemoryEventBus(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := NewAdapter(roomID, bus, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, adapter.Start(ctx))
	return bus, adapter
}

func receiveEvent(t *testing.T, adapter *Adapter) Event {
	t.Helper()
	select {
	case event := <-adapter.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return Event{}
	}
}

func TestAdapterDecodesRoomChanges(t *testing.T) {
	bus, adapter := startTestAdapter(t, "room-1")

	room := roomtypes.Room{
		ID:       "room-1",
		JoinCode: "ABCDEF",
		HostID:   "p1",
		Status:   roomtypes.RoomStatusPlaying,
	}
	require.NoError(t, storeevents.Publish(context.Background(), bus,
		storeevents.RoomSubject("room-1"),
		storeevents.RoomChangePayloadV1{Op: storeevents.OpUpdate, New: room},
	))

	event := receiveEvent(t, adapter)
	assert.Equal(t, KindRoomChanged, event.Kind)
	assert.Equal(t, storeevents.OpUpdate, event.Op)
	require.NotNil(t, event.Room)
	if diff := cmp.Diff(room, *event.Room); diff != "" {
		t.Errorf("decoded room mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapterDecodesBuzzChanges(t *testing.T) {
	bus, adapter := startTestAdapter(t, "room-1")

	buzz := gametypes.Buzz{
		ID:       "buzz-1",
		RoomID:   "room-1",
		PlayerID: "p2",
		SongID:   "song-1",
		Seq:      7,
		IsWinner: true,
	}
	require.NoError(t, storeevents.Publish(context.Background(), bus,
		storeevents.BuzzSubject("room-1"),
		storeevents.BuzzChangePayloadV1{Op: storeevents.OpUpdate, New: buzz},
	))

	event := receiveEvent(t, adapter)
	assert.Equal(t, KindBuzzChanged, event.Kind)
	require.NotNil(t, event.Buzz)
	if diff := cmp.Diff(buzz, *event.Buzz); diff != "" {
		t.Errorf("decoded buzz mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapterIgnoresOtherRooms(t *testing.T) {
	bus, adapter := startTestAdapter(t, "room-1")

	require.NoError(t, storeevents.Publish(context.Background(), bus,
		storeevents.PlayerSubject("room-2"),
		storeevents.PlayerChangePayloadV1{Op: storeevents.OpInsert, New: roomtypes.Player{ID: "px", RoomID: "room-2"}},
	))
	require.NoError(t, storeevents.Publish(context.Background(), bus,
		storeevents.PlayerSubject("room-1"),
		storeevents.PlayerChangePayloadV1{Op: storeevents.OpInsert, New: roomtypes.Player{ID: "p3", RoomID: "room-1"}},
	))

	// Only the own-room event comes through.
	event := receiveEvent(t, adapter)
	assert.Equal(t, KindPlayerChanged, event.Kind)
	require.NotNil(t, event.Player)
	assert.Equal(t, "p3", string(event.Player.ID))

	select {
	case extra := <-adapter.Events():
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAdapterClosesOutputOnContextEnd(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := NewAdapter("room-1", bus, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, adapter.Start(ctx))
	cancel()

	select {
	case _, open := <-adapter.Events():
		assert.False(t, open, "output channel should close when the context ends")
	case <-time.After(2 * time.Second):
		t.Fatal("output channel did not close")
	}
}

func TestAdapterStartIsSingleShot(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := NewAdapter("room-1", bus, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, adapter.Start(ctx))
	// A second Start must not spawn a second set of pumps; otherwise shutdown
	// would close the output channel twice and panic.
	require.NoError(t, adapter.Start(ctx))
	cancel()

	select {
	case _, open := <-adapter.Events():
		assert.False(t, open, "output channel should close exactly once")
	case <-time.After(2 * time.Second):
		t.Fatal("output channel did not close")
	}
}
