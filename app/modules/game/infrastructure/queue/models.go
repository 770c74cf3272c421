package gamequeue

import (
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// RoundStartJob fires at a round's authoritative start instant and publishes
// the round-started broadcast from the server clock.
type RoundStartJob struct {
	RoomID    sharedtypes.RoomID `json:"room_id"`
	SongID    sharedtypes.SongID `json:"song_id"`
	StartedAt string             `json:"started_at"`
}

// Kind returns the job type identifier for River.
func (RoundStartJob) Kind() string { return "round_start" }

// RoomCleanupJob ends a room that has had no online players for the cleanup
// TTL. Scheduled periodically per room.
type RoomCleanupJob struct {
	RoomID sharedtypes.RoomID `json:"room_id"`
}

// Kind returns the job type identifier for River.
func (RoomCleanupJob) Kind() string { return "room_cleanup" }

// JobInfo describes one scheduled job, for debugging and monitoring.
type JobInfo struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	RoomID      string `json:"room_id"`
	State       string `json:"state"`
	ScheduledAt string `json:"scheduled_at"`
	CreatedAt   string `json:"created_at"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}
