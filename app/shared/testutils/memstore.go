// Package testutils provides an in-memory row store implementing the room,
// player and buzz repository contracts. It is read-after-write consistent,
// assigns buzz timestamps from its own clock with a monotonic sequence
// tie-break, and fans out the same change events as the bun repositories, so
// unit tests can run many simulated clients against one store.
package testutils

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// MemStore is the in-memory substrate. The zero value is not usable; call
// NewMemStore.
type MemStore struct {
	mu sync.Mutex

	rooms   map[sharedtypes.RoomID]*roomtypes.Room
	players map[sharedtypes.PlayerID]*roomtypes.Player
	buzzes  map[string]*gametypes.Buzz

	seq      int64
	lastTime time.Time

	// Now supplies the store clock. Overridable so tests can pin timestamps.
	Now func() time.Time

	// Events, when set, receives the change events every write publishes.
	Events storeevents.Publisher
}

func NewMemStore() *MemStore {
	return &MemStore{
		rooms:   make(map[sharedtypes.RoomID]*roomtypes.Room),
		players: make(map[sharedtypes.PlayerID]*roomtypes.Player),
		buzzes:  make(map[string]*gametypes.Buzz),
		Now:     time.Now,
	}
}

// now returns a strictly monotonic store timestamp.
func (s *MemStore) now() time.Time {
	t := s.Now()
	if !t.After(s.lastTime) {
		t = s.lastTime.Add(time.Microsecond)
	}
	s.lastTime = t
	return t
}

func (s *MemStore) publish(ctx context.Context, subject string, payload any) {
	if s.Events == nil {
		return
	}
	if err := storeevents.Publish(ctx, s.Events, subject, payload); err != nil {
		slog.WarnContext(ctx, "memstore: failed to publish change", slog.Any("error", err))
	}
}

// ---- RoomDB ----

func (s *MemStore) CreateRoom(ctx context.Context, room *roomtypes.Room) error {
	s.mu.Lock()
	if _, exists := s.rooms[room.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("room %s already exists", room.ID)
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = s.now()
	}
	room.UpdatedAt = room.CreatedAt
	cp := *room
	s.rooms[room.ID] = &cp
	s.mu.Unlock()

	s.publish(ctx, storeevents.RoomSubject(room.ID), storeevents.RoomChangePayloadV1{Op: storeevents.OpInsert, New: cp})
	return nil
}

func (s *MemStore) GetRoom(ctx context.Context, roomID sharedtypes.RoomID) (*roomtypes.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s not found", roomID)
	}
	cp := *room
	return &cp, nil
}

func (s *MemStore) GetRoomByCode(ctx context.Context, joinCode string) (*roomtypes.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if strings.EqualFold(room.JoinCode, joinCode) {
			cp := *room
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, roomID sharedtypes.RoomID, status roomtypes.RoomStatus) (*roomtypes.Room, error) {
	return s.mutateRoom(ctx, roomID, func(room *roomtypes.Room) {
		room.Status = status
	})
}

func (s *MemStore) SetCurrentSong(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, startedAt time.Time) (*roomtypes.Room, error) {
	return s.mutateRoom(ctx, roomID, func(room *roomtypes.Room) {
		room.Status = roomtypes.RoomStatusPlaying
		room.CurrentSongID = &songID
		room.CurrentSongStartedAt = &startedAt
	})
}

func (s *MemStore) EndRoom(ctx context.Context, roomID sharedtypes.RoomID) (*roomtypes.Room, error) {
	return s.mutateRoom(ctx, roomID, func(room *roomtypes.Room) {
		room.Status = roomtypes.RoomStatusEnded
		room.CurrentSongID = nil
		room.CurrentSongStartedAt = nil
	})
}

func (s *MemStore) TransferHost(ctx context.Context, roomID sharedtypes.RoomID, from, to sharedtypes.PlayerID) (*roomtypes.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("room %s not found", roomID)
	}
	if room.HostID != from {
		s.mu.Unlock()
		return nil, fmt.Errorf("room %s host is not %s", roomID, from)
	}
	oldHost, ok := s.players[from]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("player %s not found", from)
	}
	newHost, ok := s.players[to]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("player %s not found", to)
	}
	room.HostID = to
	room.UpdatedAt = s.now()
	oldHost.IsHost = false
	newHost.IsHost = true
	roomCp, oldCp, newCp := *room, *oldHost, *newHost
	s.mu.Unlock()

	s.publish(ctx, storeevents.RoomSubject(roomID), storeevents.RoomChangePayloadV1{Op: storeevents.OpUpdate, New: roomCp})
	s.publish(ctx, storeevents.PlayerSubject(roomID), storeevents.PlayerChangePayloadV1{Op: storeevents.OpUpdate, New: oldCp})
	s.publish(ctx, storeevents.PlayerSubject(roomID), storeevents.PlayerChangePayloadV1{Op: storeevents.OpUpdate, New: newCp})
	return &roomCp, nil
}

func (s *MemStore) mutateRoom(ctx context.Context, roomID sharedtypes.RoomID, mutate func(*roomtypes.Room)) (*roomtypes.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("room %s not found", roomID)
	}
	mutate(room)
	room.UpdatedAt = s.now()
	cp := *room
	s.mu.Unlock()

	s.publish(ctx, storeevents.RoomSubject(roomID), storeevents.RoomChangePayloadV1{Op: storeevents.OpUpdate, New: cp})
	return &cp, nil
}

// ---- PlayerDB ----

func (s *MemStore) CreatePlayer(ctx context.Context, player *roomtypes.Player) error {
	s.mu.Lock()
	if _, exists := s.players[player.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("player %s already exists", player.ID)
	}
	if player.JoinedAt.IsZero() {
		player.JoinedAt = s.now()
	}
	cp := *player
	s.players[player.ID] = &cp
	s.mu.Unlock()

	s.publish(ctx, storeevents.PlayerSubject(player.RoomID), storeevents.PlayerChangePayloadV1{Op: storeevents.OpInsert, New: cp})
	return nil
}

func (s *MemStore) GetPlayer(ctx context.Context, playerID sharedtypes.PlayerID) (*roomtypes.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return nil, fmt.Errorf("player %s not found", playerID)
	}
	cp := *player
	return &cp, nil
}

func (s *MemStore) ListPlayers(ctx context.Context, roomID sharedtypes.RoomID) ([]roomtypes.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var players []roomtypes.Player
	for _, player := range s.players {
		if player.RoomID == roomID {
			players = append(players, *player)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	return players, nil
}

func (s *MemStore) DeletePlayer(ctx context.Context, playerID sharedtypes.PlayerID) error {
	s.mu.Lock()
	player, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("player %s not found", playerID)
	}
	cp := *player
	delete(s.players, playerID)
	s.mu.Unlock()

	s.publish(ctx, storeevents.PlayerSubject(cp.RoomID), storeevents.PlayerChangePayloadV1{Op: storeevents.OpDelete, New: cp})
	return nil
}

func (s *MemStore) IncrementScore(ctx context.Context, playerID sharedtypes.PlayerID) (*roomtypes.Player, error) {
	s.mu.Lock()
	player, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("player %s not found", playerID)
	}
	player.Score++
	cp := *player
	s.mu.Unlock()

	s.publish(ctx, storeevents.PlayerSubject(cp.RoomID), storeevents.PlayerChangePayloadV1{Op: storeevents.OpUpdate, New: cp})
	return &cp, nil
}

// ---- BuzzDB ----

func (s *MemStore) CreateBuzz(ctx context.Context, buzz *gametypes.Buzz) error {
	s.mu.Lock()
	if _, exists := s.buzzes[buzz.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("buzz %s already exists", buzz.ID)
	}
	for _, existing := range s.buzzes {
		if existing.RoomID == buzz.RoomID && existing.SongID == buzz.SongID && existing.PlayerID == buzz.PlayerID {
			s.mu.Unlock()
			return fmt.Errorf("player %s already buzzed for song %s", buzz.PlayerID, buzz.SongID)
		}
	}
	buzz.BuzzedAt = s.now()
	s.seq++
	buzz.Seq = s.seq
	cp := *buzz
	s.buzzes[buzz.ID] = &cp
	s.mu.Unlock()

	s.publish(ctx, storeevents.BuzzSubject(buzz.RoomID), storeevents.BuzzChangePayloadV1{Op: storeevents.OpInsert, New: cp})
	return nil
}

func (s *MemStore) GetWinningBuzz(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID) (*gametypes.Buzz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, buzz := range s.buzzes {
		if buzz.RoomID == roomID && buzz.SongID == songID && buzz.IsWinner {
			cp := *buzz
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetPlayerBuzz(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID, playerID sharedtypes.PlayerID) (*gametypes.Buzz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, buzz := range s.buzzes {
		if buzz.RoomID == roomID && buzz.SongID == songID && buzz.PlayerID == playerID {
			cp := *buzz
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListBuzzes(ctx context.Context, roomID sharedtypes.RoomID, songID sharedtypes.SongID) ([]gametypes.Buzz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buzzes []gametypes.Buzz
	for _, buzz := range s.buzzes {
		if buzz.RoomID == roomID && buzz.SongID == songID && !buzz.Invalidated {
			buzzes = append(buzzes, *buzz)
		}
	}
	sort.Slice(buzzes, func(i, j int) bool {
		if !buzzes[i].BuzzedAt.Equal(buzzes[j].BuzzedAt) {
			return buzzes[i].BuzzedAt.Before(buzzes[j].BuzzedAt)
		}
		return buzzes[i].Seq < buzzes[j].Seq
	})
	return buzzes, nil
}

func (s *MemStore) MarkWinner(ctx context.Context, buzzID string) (*gametypes.Buzz, error) {
	s.mu.Lock()
	buzz, ok := s.buzzes[buzzID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("buzz %s not found", buzzID)
	}
	// Promotion is guarded: a round that already has a winner is left alone,
	// and an invalidated buzz can never come back.
	if buzz.Invalidated {
		s.mu.Unlock()
		return nil, nil
	}
	for _, other := range s.buzzes {
		if other.RoomID == buzz.RoomID && other.SongID == buzz.SongID && other.IsWinner {
			s.mu.Unlock()
			return nil, nil
		}
	}
	buzz.IsWinner = true
	cp := *buzz
	s.mu.Unlock()

	s.publish(ctx, storeevents.BuzzSubject(cp.RoomID), storeevents.BuzzChangePayloadV1{Op: storeevents.OpUpdate, New: cp})
	return &cp, nil
}

func (s *MemStore) ClearWinner(ctx context.Context, buzzID string) (*gametypes.Buzz, error) {
	return s.mutateBuzz(ctx, buzzID, func(buzz *gametypes.Buzz) {
		buzz.IsWinner = false
		buzz.Invalidated = true
	})
}

func (s *MemStore) mutateBuzz(ctx context.Context, buzzID string, mutate func(*gametypes.Buzz)) (*gametypes.Buzz, error) {
	s.mu.Lock()
	buzz, ok := s.buzzes[buzzID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("buzz %s not found", buzzID)
	}
	mutate(buzz)
	cp := *buzz
	s.mu.Unlock()

	s.publish(ctx, storeevents.BuzzSubject(cp.RoomID), storeevents.BuzzChangePayloadV1{Op: storeevents.OpUpdate, New: cp})
	return &cp, nil
}

