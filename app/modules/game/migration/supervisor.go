// Package migration keeps a room playable when its host disappears: every
// client watches presence, and the designated successor promotes itself after
// a grace period so a blinking connection never bounces host authority around.
package migration

import (
	"context"
	"log/slog"
	"time"

	"github.com/julienbrs/blindtest-sub000/app/modules/game/presence"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	roomdb "github.com/julienbrs/blindtest-sub000/app/modules/room/infrastructure/repositories"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// DefaultGracePeriod is how long the host must stay offline before the
// successor takes over.
const DefaultGracePeriod = 10 * time.Second

// Metrics is the recorder slice the supervisor needs.
type Metrics interface {
	RecordHostMigration(ctx context.Context)
}

// NoOpMetrics satisfies Metrics and records nothing.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordHostMigration(context.Context) {}

// Supervisor runs on one client and migrates host authority to that client
// when it is next in the succession order and the current host has been
// offline past the grace period. Succession order is join order, so every
// client independently computes the same successor and only one ever acts.
type Supervisor struct {
	roomID sharedtypes.RoomID
	selfID sharedtypes.PlayerID

	rooms    roomdb.RoomDB
	players  roomdb.PlayerDB
	presence presence.Tracker

	logger  *slog.Logger
	metrics Metrics

	// GracePeriod overrides DefaultGracePeriod when set before Run.
	GracePeriod time.Duration

	// OnMigrated, when set, is called after this client became host.
	OnMigrated func(newHost sharedtypes.PlayerID)
}

// NewSupervisor builds a supervisor for one (room, player) pair.
func NewSupervisor(roomID sharedtypes.RoomID, selfID sharedtypes.PlayerID, rooms roomdb.RoomDB, players roomdb.PlayerDB, tracker presence.Tracker, logger *slog.Logger, metrics Metrics) *Supervisor {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Supervisor{
		roomID:      roomID,
		selfID:      selfID,
		rooms:       rooms,
		players:     players,
		presence:    tracker,
		logger:      logger,
		metrics:     metrics,
		GracePeriod: DefaultGracePeriod,
	}
}

// Run watches presence until ctx is done. It blocks.
func (s *Supervisor) Run(ctx context.Context) error {
	updates, err := s.presence.Watch(ctx, s.roomID)
	if err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	snapshot, err := s.presence.Snapshot(ctx, s.roomID)
	if err != nil {
		return err
	}
	s.evaluate(ctx, snapshot, &timer, &timerC, stopTimer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-updates:
			if !ok {
				return nil
			}
			s.evaluate(ctx, snapshot, &timer, &timerC, stopTimer)
		case <-timerC:
			stopTimer()
			s.attemptMigration(ctx)
		}
	}
}

// evaluate decides, for one presence snapshot, whether this client should be
// counting down toward a takeover.
func (s *Supervisor) evaluate(ctx context.Context, snapshot map[sharedtypes.PlayerID]bool, timer **time.Timer, timerC *<-chan time.Time, stopTimer func()) {
	room, err := s.rooms.GetRoom(ctx, s.roomID)
	if err != nil {
		s.logger.Warn("Failed to fetch room during presence evaluation",
			attr.RoomID("room_id", s.roomID),
			attr.Error(err),
		)
		return
	}
	if room.Status == roomtypes.RoomStatusEnded {
		stopTimer()
		return
	}
	if snapshot[room.HostID] {
		// Host is back; any pending takeover is cancelled.
		if *timer != nil {
			s.logger.Info("Host returned before the grace period expired",
				attr.RoomID("room_id", s.roomID),
				attr.PlayerID("host_id", room.HostID),
			)
		}
		stopTimer()
		return
	}

	successor, err := s.successor(ctx, room.HostID, snapshot)
	if err != nil {
		s.logger.Warn("Failed to compute host successor",
			attr.RoomID("room_id", s.roomID),
			attr.Error(err),
		)
		return
	}
	if successor != s.selfID {
		// Not our turn. If the successor itself drops, the next snapshot
		// re-evaluates.
		stopTimer()
		return
	}
	if *timer == nil {
		t := time.NewTimer(s.GracePeriod)
		*timer = t
		*timerC = t.C
		s.logger.Info("Host offline, takeover scheduled",
			attr.RoomID("room_id", s.roomID),
			attr.PlayerID("host_id", room.HostID),
			attr.Duration("grace_period", s.GracePeriod),
		)
	}
}

// successor returns the earliest-joined online player other than the host.
// Empty when nobody qualifies.
func (s *Supervisor) successor(ctx context.Context, hostID sharedtypes.PlayerID, snapshot map[sharedtypes.PlayerID]bool) (sharedtypes.PlayerID, error) {
	players, err := s.players.ListPlayers(ctx, s.roomID)
	if err != nil {
		return "", err
	}
	for _, player := range players {
		if player.ID == hostID {
			continue
		}
		if snapshot[player.ID] {
			return player.ID, nil
		}
	}
	return "", nil
}

// attemptMigration re-checks everything at grace expiry before committing the
// transfer. The store-side transfer is transactional and guarded on the old
// host id, so even two racing successors cannot double-migrate.
func (s *Supervisor) attemptMigration(ctx context.Context) {
	snapshot, err := s.presence.Snapshot(ctx, s.roomID)
	if err != nil {
		s.logger.Warn("Failed to snapshot presence at grace expiry",
			attr.RoomID("room_id", s.roomID),
			attr.Error(err),
		)
		return
	}
	room, err := s.rooms.GetRoom(ctx, s.roomID)
	if err != nil {
		s.logger.Warn("Failed to fetch room at grace expiry",
			attr.RoomID("room_id", s.roomID),
			attr.Error(err),
		)
		return
	}
	if room.Status == roomtypes.RoomStatusEnded || snapshot[room.HostID] {
		return
	}
	successor, err := s.successor(ctx, room.HostID, snapshot)
	if err != nil || successor != s.selfID {
		return
	}

	if _, err := s.rooms.TransferHost(ctx, s.roomID, room.HostID, s.selfID); err != nil {
		// Lost the race to another successor or the host row moved; the next
		// snapshot sorts it out.
		s.logger.Warn("Host transfer failed",
			attr.RoomID("room_id", s.roomID),
			attr.PlayerID("from", room.HostID),
			attr.PlayerID("to", s.selfID),
			attr.Error(err),
		)
		return
	}

	s.metrics.RecordHostMigration(ctx)
	s.logger.Info("Host migrated",
		attr.RoomID("room_id", s.roomID),
		attr.PlayerID("from", room.HostID),
		attr.PlayerID("to", s.selfID),
	)
	if s.OnMigrated != nil {
		s.OnMigrated(s.selfID)
	}
}
