package roomtypes

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// JoinCodeLength is the length of every human-facing room code.
const JoinCodeLength = 6

// joinCodeAlphabet leaves out 0/O and 1/I, which read identically when a
// player dictates a code out loud or types it from a screenshot.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewJoinCode generates a random join code. Uniqueness is the caller's
// problem; codes collide rarely but legitimately.
func NewJoinCode() (string, error) {
	buf := make([]byte, JoinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeJoinCode maps user input onto the canonical code form.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code could have been produced by NewJoinCode.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(joinCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// AvatarPool is the fixed emoji set players draw from, in assignment order.
var AvatarPool = []string{
	"🎤", "🎸", "🥁", "🎹", "🎺", "🎻", "🎷", "🪕",
	"🎧", "🎶", "🪗", "🔔", "🎵", "📯", "🪘", "🎚️",
}
