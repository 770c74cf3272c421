package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// FleetTracker derives presence for every room from one wildcard heartbeat
// subscription. The server process uses it where a client uses the per-room
// NATSTracker.
type FleetTracker struct {
	conn   *nc.Conn
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen map[sharedtypes.RoomID]map[sharedtypes.PlayerID]time.Time
	watchers map[sharedtypes.RoomID][]chan map[sharedtypes.PlayerID]bool
	sub      *nc.Subscription
}

// NewFleetTracker subscribes to every room's heartbeats and sweeps for expiry
// until ctx is done.
func NewFleetTracker(ctx context.Context, conn *nc.Conn, logger *slog.Logger) (*FleetTracker, error) {
	t := &FleetTracker{
		conn:     conn,
		logger:   logger,
		lastSeen: make(map[sharedtypes.RoomID]map[sharedtypes.PlayerID]time.Time),
		watchers: make(map[sharedtypes.RoomID][]chan map[sharedtypes.PlayerID]bool),
	}

	sub, err := conn.Subscribe("presence.>", func(msg *nc.Msg) {
		// Subject shape: presence.<roomID>.<playerID>
		parts := strings.Split(msg.Subject, ".")
		if len(parts) != 3 {
			return
		}
		t.beat(sharedtypes.RoomID(parts[1]), sharedtypes.PlayerID(parts[2]))
	})
	if err != nil {
		return nil, err
	}
	t.sub = sub

	go t.sweep(ctx)
	return t, nil
}

func (t *FleetTracker) beat(roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID) {
	t.mu.Lock()
	room := t.lastSeen[roomID]
	if room == nil {
		room = make(map[sharedtypes.PlayerID]time.Time)
		t.lastSeen[roomID] = room
	}
	seen, ok := room[playerID]
	wasOnline := ok && time.Since(seen) < offlineAfter
	room[playerID] = time.Now()
	var snapshot map[sharedtypes.PlayerID]bool
	var watchers []chan map[sharedtypes.PlayerID]bool
	if !wasOnline {
		snapshot = t.snapshotLocked(roomID)
		watchers = append(watchers, t.watchers[roomID]...)
	}
	t.mu.Unlock()

	notifyWatchers(watchers, snapshot)
}

func (t *FleetTracker) sweep(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := t.sub.Unsubscribe(); err != nil {
				t.logger.Warn("Failed to unsubscribe fleet presence", attr.Error(err))
			}
			t.mu.Lock()
			for _, roomWatchers := range t.watchers {
				for _, w := range roomWatchers {
					close(w)
				}
			}
			t.watchers = make(map[sharedtypes.RoomID][]chan map[sharedtypes.PlayerID]bool)
			t.mu.Unlock()
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-offlineAfter)
			type update struct {
				watchers []chan map[sharedtypes.PlayerID]bool
				snapshot map[sharedtypes.PlayerID]bool
			}
			var updates []update
			t.mu.Lock()
			for roomID, room := range t.lastSeen {
				changed := false
				for playerID, seen := range room {
					if seen.Before(cutoff) {
						delete(room, playerID)
						changed = true
					}
				}
				if len(room) == 0 {
					delete(t.lastSeen, roomID)
				}
				if changed {
					updates = append(updates, update{
						watchers: append([]chan map[sharedtypes.PlayerID]bool(nil), t.watchers[roomID]...),
						snapshot: t.snapshotLocked(roomID),
					})
				}
			}
			t.mu.Unlock()
			for _, u := range updates {
				notifyWatchers(u.watchers, u.snapshot)
			}
		}
	}
}

func (t *FleetTracker) snapshotLocked(roomID sharedtypes.RoomID) map[sharedtypes.PlayerID]bool {
	room := t.lastSeen[roomID]
	snapshot := make(map[sharedtypes.PlayerID]bool, len(room))
	for playerID := range room {
		snapshot[playerID] = true
	}
	return snapshot
}

func (t *FleetTracker) Snapshot(ctx context.Context, roomID sharedtypes.RoomID) (map[sharedtypes.PlayerID]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(roomID), nil
}

func (t *FleetTracker) Watch(ctx context.Context, roomID sharedtypes.RoomID) (<-chan map[sharedtypes.PlayerID]bool, error) {
	ch := make(chan map[sharedtypes.PlayerID]bool, 8)
	t.mu.Lock()
	t.watchers[roomID] = append(t.watchers[roomID], ch)
	t.mu.Unlock()
	return ch, nil
}

func notifyWatchers(watchers []chan map[sharedtypes.PlayerID]bool, snapshot map[sharedtypes.PlayerID]bool) {
	if snapshot == nil {
		return
	}
	for _, w := range watchers {
		select {
		case w <- snapshot:
		default:
		}
	}
}
