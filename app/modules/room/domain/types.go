package roomtypes

import (
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// RoomStatus is the coarse session phase. The finer per-round status is
// derived client-side and never persisted.
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusPlaying RoomStatus = "playing"
	RoomStatusEnded   RoomStatus = "ended"
)

// GuessMode selects what players have to guess.
type GuessMode string

const (
	GuessModeTitle  GuessMode = "title"
	GuessModeArtist GuessMode = "artist"
	GuessModeBoth   GuessMode = "both"
)

// Settings is the per-session game configuration. Immutable once the room is
// created.
type Settings struct {
	GuessMode     GuessMode `json:"guess_mode"`
	ClipSeconds   int       `json:"clip_seconds"`
	AnswerSeconds int       `json:"answer_seconds"`
	NoTimer       bool      `json:"no_timer"`
}

// MaxNicknameLength bounds player nicknames.
const MaxNicknameLength = 20

// Room is one quiz session, joinable via JoinCode.
type Room struct {
	bun.BaseModel `bun:"table:rooms,alias:rm"`

	ID                   sharedtypes.RoomID   `bun:"id,pk,type:uuid" json:"id"`
	JoinCode             string               `bun:"join_code,notnull,unique" json:"join_code"`
	HostID               sharedtypes.PlayerID `bun:"host_id,notnull" json:"host_id"`
	Status               RoomStatus           `bun:"status,notnull,default:'waiting'" json:"status"`
	Settings             Settings             `bun:"settings,type:jsonb" json:"settings"`
	CurrentSongID        *sharedtypes.SongID  `bun:"current_song_id,nullzero" json:"current_song_id,omitempty"`
	CurrentSongStartedAt *time.Time           `bun:"current_song_started_at,nullzero" json:"current_song_started_at,omitempty"`
	CreatedAt            time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Player is one participant in a room.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:pl"`

	ID       sharedtypes.PlayerID `bun:"id,pk,type:uuid" json:"id"`
	RoomID   sharedtypes.RoomID   `bun:"room_id,notnull" json:"room_id"`
	Nickname string               `bun:"nickname,notnull" json:"nickname"`
	Avatar   string               `bun:"avatar,notnull" json:"avatar"`
	Score    sharedtypes.Score    `bun:"score,notnull,default:0" json:"score"`
	IsHost   bool                 `bun:"is_host,notnull,default:false" json:"is_host"`
	JoinedAt time.Time            `bun:"joined_at,nullzero,notnull,default:current_timestamp" json:"joined_at"`
}
