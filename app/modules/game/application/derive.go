package gameservice

import (
	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
)

// deriveStatus is the single place the projected round status is computed
// from authoritative inputs. It is applied on initial load, after every
// room/buzz change event, and on reconciliation, so the projection can never
// diverge between code paths.
func deriveStatus(room *roomtypes.Room, hasWinner bool, pausedFrom gametypes.GameStatus, revealed bool) gametypes.GameStatus {
	if room == nil {
		return gametypes.GameStatusWaiting
	}
	switch room.Status {
	case roomtypes.RoomStatusEnded:
		return gametypes.GameStatusEnded
	case roomtypes.RoomStatusPlaying:
		if room.CurrentSongID == nil {
			return gametypes.GameStatusLoading
		}
		if pausedFrom != "" {
			return gametypes.GameStatusPaused
		}
		if revealed {
			return gametypes.GameStatusReveal
		}
		if hasWinner {
			return gametypes.GameStatusBuzzed
		}
		return gametypes.GameStatusPlaying
	default:
		return gametypes.GameStatusWaiting
	}
}
