// Package attr provides small slog.Attr constructors so log call sites stay
// uniform across modules.
package attr

import (
	"log/slog"
	"time"

	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

func String(key, value string) slog.Attr { return slog.String(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Any(key string, value any) slog.Attr { return slog.Any(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Error(err error) slog.Attr { return slog.Any("error", err) }

func RoomID(key string, id sharedtypes.RoomID) slog.Attr { return slog.String(key, string(id)) }

func PlayerID(key string, id sharedtypes.PlayerID) slog.Attr { return slog.String(key, string(id)) }

func SongID(key string, id sharedtypes.SongID) slog.Attr { return slog.String(key, string(id)) }
