// Package gameservice contains the multiplayer round orchestrator: the
// per-client component that projects authoritative room/buzz rows into a
// local game state and exposes the role-gated round operations.
package gameservice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	"github.com/julienbrs/blindtest-sub000/app/modules/game/infrastructure/feed"
	gamedb "github.com/julienbrs/blindtest-sub000/app/modules/game/infrastructure/repositories"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	roomdb "github.com/julienbrs/blindtest-sub000/app/modules/room/infrastructure/repositories"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// RoundStartLookahead is how far in the future a new round's authoritative
// start is placed, giving every client a preload window before playback.
const RoundStartLookahead = 3 * time.Second

// reconcileInterval paces the periodic full-state reconciliation that backs
// up the change feed.
const reconcileInterval = 15 * time.Second

// Metrics is the recorder slice the orchestrator needs.
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation string)
	RecordOperationFailure(ctx context.Context, operation string)
	RecordOperationDuration(ctx context.Context, operation string, d time.Duration)
	RecordBuzzOutcome(ctx context.Context, outcome string)
}

// NoOpMetrics satisfies Metrics and records nothing.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration) {}
func (NoOpMetrics) RecordBuzzOutcome(context.Context, string)                      {}

// Broadcaster sends ephemeral room signals. Optional; a nil broadcaster
// disables signals without affecting correctness.
type Broadcaster interface {
	Broadcast(ctx context.Context, subject string, payload []byte) error
}

// Scheduler hands round-start instants to the job queue so the authoritative
// start announcement originates from the server clock. Optional.
type Scheduler interface {
	ScheduleRoundStart(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, startAt time.Time) error
}

// MultiplayerGameState is the client-local read projection. It is derived
// from Room and Buzz change events and is never independently authoritative.
type MultiplayerGameState struct {
	Status               gametypes.GameStatus
	CurrentSongID        *sharedtypes.SongID
	CurrentSong          *gametypes.Song
	CurrentSongStartedAt *time.Time
	PlayedSongIDs        []sharedtypes.SongID
	RoundHistory         []gametypes.RoundHistoryEntry
}

// GameService is one client's orchestrator for one room.
type GameService struct {
	roomID   sharedtypes.RoomID
	playerID sharedtypes.PlayerID

	rooms   roomdb.RoomDB
	players roomdb.PlayerDB
	buzzes  gamedb.BuzzDB
	catalog gametypes.SongCatalog

	adapter     *feed.Adapter
	broadcaster Broadcaster
	scheduler   Scheduler

	logger  *slog.Logger
	metrics Metrics
	tracer  trace.Tracer

	mu          sync.Mutex
	room        *roomtypes.Room
	playersByID map[sharedtypes.PlayerID]roomtypes.Player
	winner      *gametypes.Buzz
	pausedFrom  gametypes.GameStatus
	revealed    bool
	state       MultiplayerGameState
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Rooms       roomdb.RoomDB
	Players     roomdb.PlayerDB
	Buzzes      gamedb.BuzzDB
	Catalog     gametypes.SongCatalog
	Adapter     *feed.Adapter
	Broadcaster Broadcaster
	Scheduler   Scheduler
	Logger      *slog.Logger
	Metrics     Metrics
	Tracer      trace.Tracer
}

// NewGameService builds the orchestrator for one (room, player) pair.
func NewGameService(roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID, deps Deps) *GameService {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &GameService{
		roomID:      roomID,
		playerID:    playerID,
		rooms:       deps.Rooms,
		players:     deps.Players,
		buzzes:      deps.Buzzes,
		catalog:     deps.Catalog,
		adapter:     deps.Adapter,
		broadcaster: deps.Broadcaster,
		scheduler:   deps.Scheduler,
		logger:      deps.Logger,
		metrics:     metrics,
		tracer:      deps.Tracer,
		playersByID: make(map[sharedtypes.PlayerID]roomtypes.Player),
	}
}

// serviceWrapper records attempt/failure/duration metrics and a trace span
// around one operation.
func (s *GameService) serviceWrapper(ctx context.Context, operation string, fn func(ctx context.Context) (GameOperationResult, error)) (GameOperationResult, error) {
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

// State returns a copy of the current projection.
func (s *GameService) State() MultiplayerGameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	state.PlayedSongIDs = append([]sharedtypes.SongID(nil), s.state.PlayedSongIDs...)
	state.RoundHistory = append([]gametypes.RoundHistoryEntry(nil), s.state.RoundHistory...)
	return state
}

// Players returns a copy of the known players, keyed by id.
func (s *GameService) Players() map[sharedtypes.PlayerID]roomtypes.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[sharedtypes.PlayerID]roomtypes.Player, len(s.playersByID))
	for id, p := range s.playersByID {
		cp[id] = p
	}
	return cp
}

// Run consumes the change feed and reconciles periodically until ctx is
// done. Callers should Reconcile once before Run to seed the projection.
func (s *GameService) Run(ctx context.Context) error {
	if err := s.adapter.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.adapter.Events():
			if !ok {
				return nil
			}
			s.handleEvent(ctx, event)
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				s.logger.Warn("Reconciliation failed",
					attr.RoomID("room_id", s.roomID),
					attr.Error(err),
				)
			}
		}
	}
}

// handleEvent applies one decoded change event to the projection. Events are
// applied idempotently: duplicates and cross-stream reordering must not
// corrupt the projection.
func (s *GameService) handleEvent(ctx context.Context, event feed.Event) {
	switch event.Kind {
	case feed.KindRoomChanged:
		s.applyRoom(ctx, event.Room)
	case feed.KindPlayerChanged:
		s.applyPlayer(event.Op, event.Player)
	case feed.KindBuzzChanged:
		s.applyBuzz(event.Buzz)
	}
}

// applyRoom absorbs a room-row change. On a song change the buzz cache is
// cleared and the winner is re-fetched from the store, which covers the case
// where the new round's winning-buzz event raced ahead of the room event.
func (s *GameService) applyRoom(ctx context.Context, room *roomtypes.Room) {
	if room == nil || room.ID != s.roomID {
		return
	}

	s.mu.Lock()
	songChanged := !songIDsEqual(currentSongID(s.room), room.CurrentSongID)
	s.room = room
	if songChanged {
		s.winner = nil
		s.revealed = false
		s.pausedFrom = ""
		s.state.CurrentSong = nil
		if room.CurrentSongID != nil {
			s.appendPlayedLocked(*room.CurrentSongID)
		}
	}
	s.state.CurrentSongID = room.CurrentSongID
	s.state.CurrentSongStartedAt = room.CurrentSongStartedAt
	newSongID := room.CurrentSongID
	s.recomputeLocked()
	s.mu.Unlock()

	if songChanged && newSongID != nil {
		s.refreshRound(ctx, *newSongID)
	}
}

// refreshRound fetches song metadata and any already-decided winner for a
// freshly observed round.
func (s *GameService) refreshRound(ctx context.Context, songID sharedtypes.SongID) {
	var song *gametypes.Song
	if s.catalog != nil {
		var err error
		song, err = s.catalog.GetSong(ctx, songID)
		if err != nil {
			s.logger.Warn("Failed to load song metadata",
				attr.SongID("song_id", songID),
				attr.Error(err),
			)
		}
	}
	winner, err := s.buzzes.GetWinningBuzz(ctx, s.roomID, songID)
	if err != nil {
		s.logger.Warn("Failed to check winner for new round",
			attr.SongID("song_id", songID),
			attr.Error(err),
		)
	}

	s.mu.Lock()
	if s.state.CurrentSongID != nil && *s.state.CurrentSongID == songID {
		if song != nil {
			s.state.CurrentSong = song
		}
		if winner != nil {
			s.winner = winner
		}
		s.recomputeLocked()
	}
	s.mu.Unlock()
}

func (s *GameService) applyPlayer(op storeevents.Op, player *roomtypes.Player) {
	if player == nil || player.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if op == storeevents.OpDelete {
		delete(s.playersByID, player.ID)
		return
	}
	s.playersByID[player.ID] = *player
}

// applyBuzz absorbs a buzz change. Buzzes for a round other than the current
// one are late or duplicate deliveries for a closed round and are dropped.
func (s *GameService) applyBuzz(buzz *gametypes.Buzz) {
	if buzz == nil || buzz.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentSongID == nil || buzz.SongID != *s.state.CurrentSongID {
		return
	}
	if buzz.IsWinner {
		s.winner = buzz
	} else if s.winner != nil && s.winner.ID == buzz.ID {
		// Winner invalidated by the host; the floor reopens.
		s.winner = nil
	}
	s.recomputeLocked()
}

// Reconcile re-derives the whole projection from the latest authoritative
// rows. This is the correctness backstop for events missed while the feed
// was down.
func (s *GameService) Reconcile(ctx context.Context) error {
	room, err := s.rooms.GetRoom(ctx, s.roomID)
	if err != nil {
		return err
	}
	players, err := s.players.ListPlayers(ctx, s.roomID)
	if err != nil {
		return err
	}
	var winner *gametypes.Buzz
	if room.CurrentSongID != nil {
		winner, err = s.buzzes.GetWinningBuzz(ctx, s.roomID, *room.CurrentSongID)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	songChanged := !songIDsEqual(currentSongID(s.room), room.CurrentSongID)
	s.room = room
	if songChanged {
		s.revealed = false
		s.pausedFrom = ""
		s.state.CurrentSong = nil
		if room.CurrentSongID != nil {
			s.appendPlayedLocked(*room.CurrentSongID)
		}
	}
	s.state.CurrentSongID = room.CurrentSongID
	s.state.CurrentSongStartedAt = room.CurrentSongStartedAt
	s.winner = winner
	s.playersByID = make(map[sharedtypes.PlayerID]roomtypes.Player, len(players))
	for _, p := range players {
		s.playersByID[p.ID] = p
	}
	newSongID := room.CurrentSongID
	needSong := songChanged && newSongID != nil
	s.recomputeLocked()
	s.mu.Unlock()

	if needSong {
		s.refreshRound(ctx, *newSongID)
	}
	return nil
}

// recomputeLocked re-derives the projected status. Callers hold s.mu.
func (s *GameService) recomputeLocked() {
	s.state.Status = deriveStatus(s.room, s.winner != nil, s.pausedFrom, s.revealed)
}

func (s *GameService) appendPlayedLocked(songID sharedtypes.SongID) {
	for _, played := range s.state.PlayedSongIDs {
		if played == songID {
			return
		}
	}
	s.state.PlayedSongIDs = append(s.state.PlayedSongIDs, songID)
}

// isHost checks authority against the latest room row rather than the
// possibly stale projection.
func (s *GameService) isHost(ctx context.Context) (bool, *roomtypes.Room, error) {
	room, err := s.rooms.GetRoom(ctx, s.roomID)
	if err != nil {
		return false, nil, err
	}
	return room.HostID == s.playerID, room, nil
}

// broadcastSignal sends a best-effort room signal; failures are logged, never
// surfaced, because signals carry no correctness weight.
func (s *GameService) broadcastSignal(ctx context.Context, payload []byte) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(ctx, storeevents.BroadcastSubject(s.roomID), payload); err != nil {
		s.logger.Warn("Failed to broadcast room signal",
			attr.RoomID("room_id", s.roomID),
			attr.Error(err),
		)
	}
}

func currentSongID(room *roomtypes.Room) *sharedtypes.SongID {
	if room == nil {
		return nil
	}
	return room.CurrentSongID
}

func songIDsEqual(a, b *sharedtypes.SongID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
