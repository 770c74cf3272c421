// Package presence exposes the per-room online/offline map the host-migration
// supervisor consumes. Readers only ever get snapshots; nothing outside this
// package mutates presence state.
package presence

import (
	"context"
	"sync"

	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// Tracker reports which players in a room are currently online.
type Tracker interface {
	// Snapshot returns the current online map. Missing players are offline.
	Snapshot(ctx context.Context, roomID sharedtypes.RoomID) (map[sharedtypes.PlayerID]bool, error)
	// Watch emits a fresh snapshot whenever the online set changes. The
	// channel closes when ctx is done.
	Watch(ctx context.Context, roomID sharedtypes.RoomID) (<-chan map[sharedtypes.PlayerID]bool, error)
}

// MemoryTracker is a Tracker driven directly by SetOnline calls. Used in
// tests and local single-process play.
type MemoryTracker struct {
	mu       sync.Mutex
	online   map[sharedtypes.RoomID]map[sharedtypes.PlayerID]bool
	watchers map[sharedtypes.RoomID][]chan map[sharedtypes.PlayerID]bool
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		online:   make(map[sharedtypes.RoomID]map[sharedtypes.PlayerID]bool),
		watchers: make(map[sharedtypes.RoomID][]chan map[sharedtypes.PlayerID]bool),
	}
}

// SetOnline flips one player's presence and notifies watchers.
func (t *MemoryTracker) SetOnline(roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID, online bool) {
	t.mu.Lock()
	room := t.online[roomID]
	if room == nil {
		room = make(map[sharedtypes.PlayerID]bool)
		t.online[roomID] = room
	}
	room[playerID] = online
	snapshot := copyMap(room)
	watchers := append([]chan map[sharedtypes.PlayerID]bool(nil), t.watchers[roomID]...)
	t.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- snapshot:
		default:
			// Watcher is lagging; it will catch up on the next change or via
			// Snapshot.
		}
	}
}

func (t *MemoryTracker) Snapshot(ctx context.Context, roomID sharedtypes.RoomID) (map[sharedtypes.PlayerID]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyMap(t.online[roomID]), nil
}

func (t *MemoryTracker) Watch(ctx context.Context, roomID sharedtypes.RoomID) (<-chan map[sharedtypes.PlayerID]bool, error) {
	ch := make(chan map[sharedtypes.PlayerID]bool, 8)
	t.mu.Lock()
	t.watchers[roomID] = append(t.watchers[roomID], ch)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		watchers := t.watchers[roomID]
		for i, w := range watchers {
			if w == ch {
				t.watchers[roomID] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func copyMap(m map[sharedtypes.PlayerID]bool) map[sharedtypes.PlayerID]bool {
	cp := make(map[sharedtypes.PlayerID]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
