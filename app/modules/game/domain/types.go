package gametypes

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// GameStatus is the client-side projected round status. It is derived from
// the room and buzz rows plus local pause bookkeeping, never persisted.
type GameStatus string

const (
	GameStatusWaiting GameStatus = "waiting"
	GameStatusLoading GameStatus = "loading"
	GameStatusPlaying GameStatus = "playing"
	GameStatusBuzzed  GameStatus = "buzzed"
	GameStatusPaused  GameStatus = "paused"
	GameStatusReveal  GameStatus = "reveal"
	GameStatusEnded   GameStatus = "ended"
)

// Buzz is one timestamped claim to answer the current round. BuzzedAt and Seq
// are assigned by the store's clock at insert time; the pair is the fairness
// arbiter, client clocks are never trusted. An invalidated buzz stays in the
// table to keep its player locked out of the round, but leaves the ranking.
type Buzz struct {
	bun.BaseModel `bun:"table:buzzes,alias:bz"`

	ID          string               `bun:"id,pk,type:uuid" json:"id"`
	RoomID      sharedtypes.RoomID   `bun:"room_id,notnull" json:"room_id"`
	PlayerID    sharedtypes.PlayerID `bun:"player_id,notnull" json:"player_id"`
	SongID      sharedtypes.SongID   `bun:"song_id,notnull" json:"song_id"`
	BuzzedAt    time.Time            `bun:"buzzed_at,nullzero,notnull,default:current_timestamp" json:"buzzed_at"`
	Seq         int64                `bun:"seq,autoincrement" json:"seq"`
	IsWinner    bool                 `bun:"is_winner,notnull,default:false" json:"is_winner"`
	Invalidated bool                 `bun:"invalidated,notnull,default:false" json:"invalidated"`
}

// Song is catalog metadata for one track. The core never parses audio; this
// comes from an external catalog.
type Song struct {
	ID       sharedtypes.SongID `json:"id"`
	Title    string             `json:"title"`
	Artist   string             `json:"artist"`
	Duration time.Duration      `json:"duration"`
}

// SongCatalog resolves song metadata by id. Implemented outside the core.
type SongCatalog interface {
	GetSong(ctx context.Context, id sharedtypes.SongID) (*Song, error)
}

// RoundWinner records who won a round and how fast, for the recap.
type RoundWinner struct {
	PlayerID   sharedtypes.PlayerID `json:"player_id"`
	Nickname   string               `json:"nickname"`
	Avatar     string               `json:"avatar"`
	BuzzMillis int64                `json:"buzz_millis"`
}

// RoundHistoryEntry is one line of the end-of-game recap. Immutable once
// appended. Winner is nil when nobody buzzed.
type RoundHistoryEntry struct {
	RoundNumber int                `json:"round_number"`
	SongID      sharedtypes.SongID `json:"song_id"`
	Title       string             `json:"title"`
	Artist      string             `json:"artist"`
	Winner      *RoundWinner       `json:"winner,omitempty"`
	WasCorrect  bool               `json:"was_correct"`
}
