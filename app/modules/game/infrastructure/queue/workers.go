package gamequeue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/julienbrs/blindtest-sub000/app/modules/game/presence"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	roomdb "github.com/julienbrs/blindtest-sub000/app/modules/room/infrastructure/repositories"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
)

// Broadcaster is the slice of the event bus the workers publish on.
type Broadcaster interface {
	Broadcast(ctx context.Context, subject string, payload []byte) error
}

// RoundStartWorker publishes the authoritative round-started broadcast when
// the scheduled instant arrives.
type RoundStartWorker struct {
	river.WorkerDefaults[RoundStartJob]
	logger      *slog.Logger
	broadcaster Broadcaster
}

func NewRoundStartWorker(logger *slog.Logger, broadcaster Broadcaster) *RoundStartWorker {
	return &RoundStartWorker{logger: logger, broadcaster: broadcaster}
}

func (w *RoundStartWorker) Work(ctx context.Context, job *river.Job[RoundStartJob]) error {
	payload, err := storeevents.EncodeSignal(storeevents.SignalRoundStarted, storeevents.RoundStartedSignalV1{
		RoomID:    job.Args.RoomID,
		SongID:    job.Args.SongID,
		StartedAt: job.Args.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode round-started signal: %w", err)
	}
	if err := w.broadcaster.Broadcast(ctx, storeevents.BroadcastSubject(job.Args.RoomID), payload); err != nil {
		return fmt.Errorf("failed to broadcast round start: %w", err)
	}
	w.logger.Info("Round start announced",
		attr.RoomID("room_id", job.Args.RoomID),
		attr.SongID("song_id", job.Args.SongID),
	)
	return nil
}

// RoomCleanupWorker ends rooms that have been empty of online players for the
// cleanup TTL. Harmless on rooms that came back to life: it re-checks
// presence at execution time.
type RoomCleanupWorker struct {
	river.WorkerDefaults[RoomCleanupJob]
	logger  *slog.Logger
	rooms   roomdb.RoomDB
	tracker presence.Tracker
}

func NewRoomCleanupWorker(logger *slog.Logger, rooms roomdb.RoomDB, tracker presence.Tracker) *RoomCleanupWorker {
	return &RoomCleanupWorker{logger: logger, rooms: rooms, tracker: tracker}
}

func (w *RoomCleanupWorker) Work(ctx context.Context, job *river.Job[RoomCleanupJob]) error {
	room, err := w.rooms.GetRoom(ctx, job.Args.RoomID)
	if err != nil {
		return fmt.Errorf("failed to fetch room for cleanup: %w", err)
	}
	if room.Status == roomtypes.RoomStatusEnded {
		return nil
	}
	snapshot, err := w.tracker.Snapshot(ctx, job.Args.RoomID)
	if err != nil {
		return fmt.Errorf("failed to snapshot presence for cleanup: %w", err)
	}
	for _, online := range snapshot {
		if online {
			// Somebody is still here; check again one TTL from now.
			return river.JobSnooze(CleanupTTL)
		}
	}
	if _, err := w.rooms.EndRoom(ctx, job.Args.RoomID); err != nil {
		return fmt.Errorf("failed to end stale room: %w", err)
	}
	w.logger.Info("Stale room ended", attr.RoomID("room_id", job.Args.RoomID))
	return nil
}
