// Package gamequeue schedules the server-clock jobs of a room: round-start
// announcements and stale-room cleanup, on a River queue backed by the same
// Postgres the row store lives in.
package gamequeue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/uptrace/bun"

	"github.com/julienbrs/blindtest-sub000/app/modules/game/presence"
	roomdb "github.com/julienbrs/blindtest-sub000/app/modules/room/infrastructure/repositories"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// CleanupTTL is how long a room may sit without any online player before the
// cleanup job ends it.
const CleanupTTL = 30 * time.Minute

// QueueService is the scheduling contract the orchestrator and the API use.
type QueueService interface {
	ScheduleRoundStart(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, startAt time.Time) error
	ScheduleRoomCleanup(ctx context.Context, roomID sharedtypes.RoomID) error
	CancelRoomJobs(ctx context.Context, roomID sharedtypes.RoomID) error
	GetScheduledJobs(ctx context.Context, roomID sharedtypes.RoomID) ([]JobInfo, error)
	HealthCheck(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var _ QueueService = (*Service)(nil)

// Service is the River-backed QueueService.
type Service struct {
	client *river.Client[pgx.Tx]
	logger *slog.Logger
	db     *bun.DB
}

// NewService builds the queue service. River needs its own pgx pool; dsn
// points at the same database bun uses.
func NewService(ctx context.Context, bunDB *bun.DB, logger *slog.Logger, dsn string, broadcaster Broadcaster, rooms roomdb.RoomDB, tracker presence.Tracker) (*Service, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewRoundStartWorker(logger, broadcaster))
	river.AddWorker(workers, NewRoomCleanupWorker(logger, rooms, tracker))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			"rounds":           {MaxWorkers: 25},
		},
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	logger.Info("Game queue service initialized")
	return &Service{client: client, logger: logger, db: bunDB}, nil
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start River client: %w", err)
	}
	s.logger.Info("Game queue service started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.logger.Info("Game queue service stopped")
	return nil
}

// ScheduleRoundStart queues the round-started announcement for startAt.
// Duplicate scheduling for the same (room, song, instant) collapses to one
// job.
func (s *Service) ScheduleRoundStart(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, startAt time.Time) error {
	job := RoundStartJob{
		RoomID:    roomID,
		SongID:    songID,
		StartedAt: startAt.UTC().Format(time.RFC3339Nano),
	}
	result, err := s.client.Insert(ctx, job, &river.InsertOpts{
		Queue:       "rounds",
		ScheduledAt: startAt,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
	if err != nil {
		return fmt.Errorf("failed to schedule round start job: %w", err)
	}
	s.logger.Info("Round start job scheduled",
		attr.RoomID("room_id", roomID),
		attr.SongID("song_id", songID),
		attr.Int64("job_id", result.Job.ID),
	)
	return nil
}

// ScheduleRoomCleanup queues the stale-room check for one TTL from now.
func (s *Service) ScheduleRoomCleanup(ctx context.Context, roomID sharedtypes.RoomID) error {
	result, err := s.client.Insert(ctx, RoomCleanupJob{RoomID: roomID}, &river.InsertOpts{
		ScheduledAt: time.Now().Add(CleanupTTL),
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
	if err != nil {
		return fmt.Errorf("failed to schedule room cleanup job: %w", err)
	}
	s.logger.Debug("Room cleanup job scheduled",
		attr.RoomID("room_id", roomID),
		attr.Int64("job_id", result.Job.ID),
	)
	return nil
}

// CancelRoomJobs cancels every pending job for one room, used when a room
// ends explicitly.
func (s *Service) CancelRoomJobs(ctx context.Context, roomID sharedtypes.RoomID) error {
	type riverJobRow struct {
		ID int64 `bun:"id"`
	}
	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id").
		Where("kind IN (?, ?)", "round_start", "room_cleanup").
		Where("state IN (?, ?)", "available", "scheduled").
		Where("args->>'room_id' = ?", string(roomID)).
		Scan(ctx, &jobs)
	if err != nil {
		return fmt.Errorf("failed to query jobs for cancellation: %w", err)
	}

	for _, job := range jobs {
		if _, err := s.client.JobCancel(ctx, job.ID); err != nil {
			s.logger.Warn("Failed to cancel job",
				attr.Int64("job_id", job.ID),
				attr.Error(err),
			)
		}
	}
	s.logger.Info("Room jobs cancelled",
		attr.RoomID("room_id", roomID),
		attr.Int("count", len(jobs)),
	)
	return nil
}

// GetScheduledJobs lists a room's pending jobs, for debugging.
func (s *Service) GetScheduledJobs(ctx context.Context, roomID sharedtypes.RoomID) ([]JobInfo, error) {
	type riverJobRow struct {
		ID          int64      `bun:"id"`
		Kind        string     `bun:"kind"`
		State       string     `bun:"state"`
		ScheduledAt *time.Time `bun:"scheduled_at"`
		CreatedAt   time.Time  `bun:"created_at"`
		Attempt     int16      `bun:"attempt"`
		MaxAttempts int16      `bun:"max_attempts"`
	}
	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id", "kind", "state", "scheduled_at", "created_at", "attempt", "max_attempts").
		Where("kind IN (?, ?)", "round_start", "room_cleanup").
		Where("args->>'room_id' = ?", string(roomID)).
		Order("scheduled_at ASC NULLS LAST", "created_at ASC").
		Scan(ctx, &jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled jobs: %w", err)
	}

	result := make([]JobInfo, len(jobs))
	for i, job := range jobs {
		scheduledAt := ""
		if job.ScheduledAt != nil {
			scheduledAt = job.ScheduledAt.Format(time.RFC3339)
		}
		result[i] = JobInfo{
			ID:          job.ID,
			Kind:        job.Kind,
			RoomID:      string(roomID),
			State:       job.State,
			ScheduledAt: scheduledAt,
			CreatedAt:   job.CreatedAt.Format(time.RFC3339),
			Attempt:     int(job.Attempt),
			MaxAttempts: int(job.MaxAttempts),
		}
	}
	return result, nil
}

// HealthCheck verifies the queue tables are reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	var count int
	err := s.db.NewSelect().
		Table("river_job").
		ColumnExpr("COUNT(*)").
		Scan(ctx, &count)
	if err != nil {
		return fmt.Errorf("queue service health check failed: %w", err)
	}
	return nil
}
