package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	nc "github.com/nats-io/nats.go"

	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

const (
	// HeartbeatInterval is how often a connected client announces itself.
	HeartbeatInterval = 5 * time.Second
	// offlineAfter is how long without a heartbeat before a player counts as
	// offline. Three missed beats.
	offlineAfter = 3 * HeartbeatInterval
)

// StartHeartbeat announces playerID on the room's presence subject until ctx
// is done. Heartbeats ride core NATS: lost beats are fine, the tracker only
// needs one within the offline window.
func StartHeartbeat(ctx context.Context, conn *nc.Conn, roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID, logger *slog.Logger) {
	subject := storeevents.PresenceSubject(roomID, playerID)
	ticker := time.NewTicker(HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			if err := conn.Publish(subject, nil); err != nil {
				logger.Warn("Failed to publish heartbeat",
					attr.PlayerID("player_id", playerID),
					attr.Error(err),
				)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// NATSTracker derives presence from heartbeat subjects. One tracker serves
// one room.
type NATSTracker struct {
	conn   *nc.Conn
	roomID sharedtypes.RoomID
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen map[sharedtypes.PlayerID]time.Time
	watchers []chan map[sharedtypes.PlayerID]bool
	sub      *nc.Subscription
}

// NewNATSTracker subscribes to the room's heartbeats and sweeps for expiry
// until ctx is done.
func NewNATSTracker(ctx context.Context, conn *nc.Conn, roomID sharedtypes.RoomID, logger *slog.Logger) (*NATSTracker, error) {
	t := &NATSTracker{
		conn:     conn,
		roomID:   roomID,
		logger:   logger,
		lastSeen: make(map[sharedtypes.PlayerID]time.Time),
	}

	sub, err := conn.Subscribe(storeevents.PresenceWildcard(roomID), func(msg *nc.Msg) {
		// Subject shape: presence.<roomID>.<playerID>
		parts := strings.Split(msg.Subject, ".")
		if len(parts) != 3 {
			return
		}
		t.beat(sharedtypes.PlayerID(parts[2]))
	})
	if err != nil {
		return nil, err
	}
	t.sub = sub

	go t.sweep(ctx)
	return t, nil
}

func (t *NATSTracker) beat(playerID sharedtypes.PlayerID) {
	t.mu.Lock()
	wasOnline := t.onlineLocked(playerID)
	t.lastSeen[playerID] = time.Now()
	changed := !wasOnline
	var snapshot map[sharedtypes.PlayerID]bool
	var watchers []chan map[sharedtypes.PlayerID]bool
	if changed {
		snapshot = t.snapshotLocked()
		watchers = append(watchers, t.watchers...)
	}
	t.mu.Unlock()

	t.notify(watchers, snapshot)
}

// sweep expires silent players and notifies watchers on transitions.
func (t *NATSTracker) sweep(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := t.sub.Unsubscribe(); err != nil {
				t.logger.Warn("Failed to unsubscribe presence", attr.Error(err))
			}
			t.mu.Lock()
			for _, w := range t.watchers {
				close(w)
			}
			t.watchers = nil
			t.mu.Unlock()
			return
		case <-ticker.C:
			t.mu.Lock()
			changed := false
			cutoff := time.Now().Add(-offlineAfter)
			for playerID, seen := range t.lastSeen {
				if seen.Before(cutoff) {
					delete(t.lastSeen, playerID)
					changed = true
				}
			}
			var snapshot map[sharedtypes.PlayerID]bool
			var watchers []chan map[sharedtypes.PlayerID]bool
			if changed {
				snapshot = t.snapshotLocked()
				watchers = append(watchers, t.watchers...)
			}
			t.mu.Unlock()
			t.notify(watchers, snapshot)
		}
	}
}

func (t *NATSTracker) notify(watchers []chan map[sharedtypes.PlayerID]bool, snapshot map[sharedtypes.PlayerID]bool) {
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

func (t *NATSTracker) onlineLocked(playerID sharedtypes.PlayerID) bool {
	seen, ok := t.lastSeen[playerID]
	return ok && time.Since(seen) < offlineAfter
}

func (t *NATSTracker) snapshotLocked() map[sharedtypes.PlayerID]bool {
	snapshot := make(map[sharedtypes.PlayerID]bool, len(t.lastSeen))
	for playerID := range t.lastSeen {
		snapshot[playerID] = true
	}
	return snapshot
}

func (t *NATSTracker) Snapshot(ctx context.Context, roomID sharedtypes.RoomID) (map[sharedtypes.PlayerID]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(), nil
}

func (t *NATSTracker) Watch(ctx context.Context, roomID sharedtypes.RoomID) (<-chan map[sharedtypes.PlayerID]bool, error) {
	ch := make(chan map[sharedtypes.PlayerID]bool, 8)
	t.mu.Lock()
	t.watchers = append(t.watchers, ch)
	t.mu.Unlock()
	return ch, nil
}
