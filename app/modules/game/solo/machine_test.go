package solo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

func song(id string) *gametypes.Song {
	return &gametypes.Song{ID: sharedtypes.SongID(id), Title: "Song " + id, Artist: "Artist"}
}

func TestTimerCountdownToTimeout(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})

	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()

	snap := m.Snapshot()
	require.Equal(t, StatusTimer, snap.Status)
	require.Equal(t, 5, snap.TimerRemaining)

	for i := 0; i < 5; i++ {
		m.TickTimer()
	}

	snap = m.Snapshot()
	assert.Equal(t, StatusReveal, snap.Status)
	assert.Equal(t, 0, snap.TimerRemaining)
	assert.Equal(t, 0, snap.Score, "timeout must not score")
	assert.Equal(t, 1, snap.SongsPlayed)
	assert.Equal(t, []sharedtypes.SongID{"s1"}, snap.PlayedSongIDs)
}

func TestNoTimerModeBuzzesWithoutCountdown(t *testing.T) {
	m := NewMachine(Config{NoTimer: true})

	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()

	require.Equal(t, StatusBuzzed, m.Status())

	// Arbitrary ticks must not move the machine.
	for i := 0; i < 10; i++ {
		m.TickTimer()
	}
	require.Equal(t, StatusBuzzed, m.Status())

	m.Validate(true)
	snap := m.Snapshot()
	assert.Equal(t, StatusReveal, snap.Status)
	assert.Equal(t, 1, snap.Score)
}

func TestBuzzGuards(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 3})

	// Pre-play buzz is a no-op.
	m.LoadSong(song("s1"))
	m.Buzz()
	assert.Equal(t, StatusLoading, m.Status())

	m.Play()
	m.Buzz()
	require.Equal(t, StatusTimer, m.Status())

	// Buzzing again while already in timer changes nothing.
	m.TickTimer()
	m.Buzz()
	snap := m.Snapshot()
	assert.Equal(t, StatusTimer, snap.Status)
	assert.Equal(t, 2, snap.TimerRemaining)
}

func TestValidateIncorrectDoesNotScore(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 3})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()
	m.Validate(false)

	snap := m.Snapshot()
	assert.Equal(t, StatusReveal, snap.Status)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 1, snap.SongsPlayed)
}

func TestRevealIsIdempotent(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 3})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()

	m.Reveal()
	m.Reveal()
	m.Reveal()

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.SongsPlayed)
	assert.Equal(t, []sharedtypes.SongID{"s1"}, snap.PlayedSongIDs)
}

func TestClipEndedCountsWithoutScore(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 3})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.ClipEnded()

	snap := m.Snapshot()
	assert.Equal(t, StatusReveal, snap.Status)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 1, snap.SongsPlayed)

	// ClipEnded outside playing is a no-op.
	m.ClipEnded()
	assert.Equal(t, 1, m.Snapshot().SongsPlayed)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()
	m.TickTimer()
	m.TickTimer()

	before := m.Snapshot()
	require.Equal(t, 3, before.TimerRemaining)

	m.Pause()
	require.Equal(t, StatusPaused, m.Status())

	// The countdown is frozen while paused.
	m.TickTimer()
	m.TickTimer()

	m.Resume()
	after := m.Snapshot()
	assert.Equal(t, before.Status, after.Status, "resume restores the paused-from status")
	assert.Equal(t, before.TimerRemaining, after.TimerRemaining)
	assert.Equal(t, before.Score, after.Score)
	assert.Equal(t, before.SongsPlayed, after.SongsPlayed)
	assert.Equal(t, before.CurrentSong, after.CurrentSong)
}

func TestPauseOnlyFromActiveStates(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})
	m.Pause()
	assert.Equal(t, StatusIdle, m.Status())

	m.LoadSong(song("s1"))
	m.Pause()
	assert.Equal(t, StatusLoading, m.Status())

	// Resume without a stored previous status is a no-op.
	m.Resume()
	assert.Equal(t, StatusLoading, m.Status())
}

func TestReplayKeepsFrozenTimer(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()
	m.TickTimer()
	m.Validate(false)
	require.Equal(t, StatusReveal, m.Status())

	m.Replay()
	snap := m.Snapshot()
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, 4, snap.TimerRemaining, "replay must not reset the countdown")
}

func TestNextSongResetsRoundNotGame(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()
	m.Validate(true)

	m.NextSong()
	snap := m.Snapshot()
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Nil(t, snap.CurrentSong)
	assert.False(t, snap.IsRevealed)
	assert.Equal(t, 5, snap.TimerRemaining)
	assert.Equal(t, 1, snap.Score)
	assert.Equal(t, 1, snap.SongsPlayed)
	assert.Equal(t, []sharedtypes.SongID{"s1"}, snap.PlayedSongIDs)
}

func TestEndGamePreservesCounters(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()
	m.Validate(true)
	m.EndGame()

	snap := m.Snapshot()
	assert.Equal(t, StatusEnded, snap.Status)
	assert.Equal(t, 1, snap.Score)
	assert.Equal(t, 1, snap.SongsPlayed)

	m.Reset()
	snap = m.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, 0, snap.Score)
	assert.Empty(t, snap.PlayedSongIDs)
}

func TestStartGameResetsEverything(t *testing.T) {
	m := NewMachine(Config{TimerSeconds: 5})
	m.StartGame()
	m.LoadSong(song("s1"))
	m.Play()
	m.Buzz()
	m.Validate(true)

	m.StartGame()
	snap := m.Snapshot()
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 0, snap.SongsPlayed)
	assert.Empty(t, snap.PlayedSongIDs)
}
