// Package roomservice implements the room lifecycle: create, join, leave and
// lobby state. Round play lives in the game module; this package only manages
// membership and host bookkeeping around it.
package roomservice

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	roomdb "github.com/julienbrs/blindtest-sub000/app/modules/room/infrastructure/repositories"
)

// MaxPlayersPerRoom bounds room size. Beyond this the buzz fan-out and the
// lobby UI both degrade, so joins are refused.
const MaxPlayersPerRoom = 12

// joinCodeAttempts bounds collision re-rolls at room creation.
const joinCodeAttempts = 5

// Metrics is the recorder slice the room service needs.
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation string)
	RecordOperationFailure(ctx context.Context, operation string)
	RecordOperationDuration(ctx context.Context, operation string, d time.Duration)
}

// NoOpMetrics satisfies Metrics and records nothing.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration) {}

// RoomService implements the room lifecycle operations.
type RoomService struct {
	rooms   roomdb.RoomDB
	players roomdb.PlayerDB
	logger  *slog.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// NewRoomService builds the room lifecycle service.
func NewRoomService(rooms roomdb.RoomDB, players roomdb.PlayerDB, logger *slog.Logger, metrics Metrics, tracer trace.Tracer) *RoomService {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &RoomService{
		rooms:   rooms,
		players: players,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (s *RoomService) serviceWrapper(ctx context.Context, operation string, fn func(ctx context.Context) (RoomOperationResult, error)) (RoomOperationResult, error) {
	start := time.Now()
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, operation)
		defer span.End()
	}
	s.metrics.RecordOperationAttempt(ctx, operation)

	result, err := fn(ctx)

	if err != nil || result.Failure != nil {
		s.metrics.RecordOperationFailure(ctx, operation)
	}
	s.metrics.RecordOperationDuration(ctx, operation, time.Since(start))
	return result, err
}
