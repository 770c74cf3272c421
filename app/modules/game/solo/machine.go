// Package solo implements the single-player round state machine. It shares
// the round lifecycle vocabulary with the multiplayer orchestrator but runs in
// one process with no network races.
package solo

import (
	"context"
	"sync"
	"time"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// Status is the solo machine's round status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusTimer   Status = "timer"
	StatusBuzzed  Status = "buzzed"
	StatusPaused  Status = "paused"
	StatusReveal  Status = "reveal"
	StatusEnded   Status = "ended"
)

// Config is the per-game timer configuration.
type Config struct {
	TimerSeconds int
	NoTimer      bool
}

// Machine drives one solo game. All methods are safe for concurrent use, but
// the machine models a single actor: transitions whose guard does not match
// the current status are no-ops.
type Machine struct {
	mu sync.Mutex

	cfg            Config
	status         Status
	previousStatus Status
	currentSong    *gametypes.Song
	isRevealed     bool
	timerRemaining int
	score          int
	songsPlayed    int
	playedSongIDs  []sharedtypes.SongID
}

// NewMachine returns a machine in the idle state with a full timer.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:            cfg,
		status:         StatusIdle,
		timerRemaining: cfg.TimerSeconds,
	}
}

// StartGame resets all per-game counters and moves to loading.
func (m *Machine) StartGame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.score = 0
	m.songsPlayed = 0
	m.playedSongIDs = nil
	m.currentSong = nil
	m.isRevealed = false
	m.previousStatus = ""
	m.timerRemaining = m.cfg.TimerSeconds
	m.status = StatusLoading
}

// LoadSong sets the current song and moves to loading. Valid from any state.
func (m *Machine) LoadSong(song *gametypes.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentSong = song
	m.isRevealed = false
	m.status = StatusLoading
}

// Play starts playback.
func (m *Machine) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previousStatus = ""
	m.status = StatusPlaying
}

// Buzz claims the answer. Only valid while playing; from any other state it
// is a no-op. The timer remaining is deliberately not reset here: after a
// replay the countdown continues from the value frozen at the first buzz.
func (m *Machine) Buzz() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusPlaying {
		return
	}
	if m.cfg.NoTimer {
		m.status = StatusBuzzed
		return
	}
	m.status = StatusTimer
}

// TickTimer advances the countdown by one second. It only has an effect while
// the status is exactly timer, so entering paused naturally halts the clock.
func (m *Machine) TickTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusTimer {
		return
	}
	if m.timerRemaining > 0 {
		m.timerRemaining--
	}
	if m.timerRemaining == 0 {
		// Timeout: reveal without scoring.
		m.revealLocked()
	}
}

// Validate judges the buzzed answer. Only valid from timer or buzzed.
func (m *Machine) Validate(correct bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusTimer && m.status != StatusBuzzed {
		return
	}
	if correct {
		m.score++
	}
	m.revealLocked()
}

// Reveal shows the answer. Repeat calls while already revealed do not
// double-count songsPlayed or duplicate the played-song id.
func (m *Machine) Reveal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revealLocked()
}

// ClipEnded handles the clip finishing with no buzz. Treated as an ungraded
// "no answer": reveal without scoring.
func (m *Machine) ClipEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusPlaying {
		return
	}
	m.revealLocked()
}

// Replay re-listens to the clip from the reveal screen. The frozen timer
// remaining survives.
func (m *Machine) Replay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusReveal {
		return
	}
	m.status = StatusPlaying
}

// NextSong clears the round and moves to loading with a fresh timer. Scores
// and played-song bookkeeping persist.
func (m *Machine) NextSong() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentSong = nil
	m.isRevealed = false
	m.timerRemaining = m.cfg.TimerSeconds
	m.status = StatusLoading
}

// EndGame ends the session, preserving counters for the recap.
func (m *Machine) EndGame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusEnded
}

// Reset returns to the full initial state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.score = 0
	m.songsPlayed = 0
	m.playedSongIDs = nil
	m.currentSong = nil
	m.isRevealed = false
	m.previousStatus = ""
	m.timerRemaining = m.cfg.TimerSeconds
	m.status = StatusIdle
}

// Pause freezes the game from playing, timer or buzzed, remembering where to
// resume.
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status {
	case StatusPlaying, StatusTimer, StatusBuzzed:
		m.previousStatus = m.status
		m.status = StatusPaused
	}
}

// Resume restores the exact status recorded at pause time. A countdown
// resumes from the frozen remaining value, never from a fresh timer.
func (m *Machine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusPaused || m.previousStatus == "" {
		return
	}
	m.status = m.previousStatus
	m.previousStatus = ""
}

// revealLocked moves to reveal and counts the round exactly once.
func (m *Machine) revealLocked() {
	alreadyCounted := m.status == StatusReveal
	m.status = StatusReveal
	m.isRevealed = true
	if alreadyCounted {
		return
	}
	m.songsPlayed++
	if m.currentSong != nil && !m.hasPlayedLocked(m.currentSong.ID) {
		m.playedSongIDs = append(m.playedSongIDs, m.currentSong.ID)
	}
}

func (m *Machine) hasPlayedLocked(id sharedtypes.SongID) bool {
	for _, played := range m.playedSongIDs {
		if played == id {
			return true
		}
	}
	return false
}

// RunTicker drives the one-second countdown until ctx is done. TickTimer
// guards on the timer status, so pausing freezes the countdown without
// stopping the ticker.
func (m *Machine) RunTicker(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.TickTimer()
		}
	}
}

// Snapshot is a point-in-time copy of the machine state.
type Snapshot struct {
	Status         Status
	PreviousStatus Status
	CurrentSong    *gametypes.Song
	IsRevealed     bool
	TimerRemaining int
	Score          int
	SongsPlayed    int
	PlayedSongIDs  []sharedtypes.SongID
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]sharedtypes.SongID, len(m.playedSongIDs))
	copy(ids, m.playedSongIDs)
	return Snapshot{
		Status:         m.status,
		PreviousStatus: m.previousStatus,
		CurrentSong:    m.currentSong,
		IsRevealed:     m.isRevealed,
		TimerRemaining: m.timerRemaining,
		Score:          m.score,
		SongsPlayed:    m.songsPlayed,
		PlayedSongIDs:  ids,
	}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
