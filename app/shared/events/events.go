// Package storeevents defines the row-level change events fanned out to every
// room member after a store write, and the subject naming shared by the
// repositories (producers) and the change-feed adapter (consumer).
package storeevents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// Op is the kind of row mutation a change event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Subjects are scoped per room so a feed subscription only sees its own
// room's traffic. Delivery is at-least-once; ordering is only guaranteed
// within one subject.
func RoomSubject(roomID sharedtypes.RoomID) string   { return "store.rooms." + string(roomID) }
func PlayerSubject(roomID sharedtypes.RoomID) string { return "store.players." + string(roomID) }
func BuzzSubject(roomID sharedtypes.RoomID) string   { return "store.buzzes." + string(roomID) }

// BroadcastSubject carries ephemeral, non-persisted room signals (reactions,
// round-start announcements). No delivery guarantee.
func BroadcastSubject(roomID sharedtypes.RoomID) string {
	return "room." + string(roomID) + ".signals"
}

// PresenceSubject carries one player's heartbeat.
func PresenceSubject(roomID sharedtypes.RoomID, playerID sharedtypes.PlayerID) string {
	return "presence." + string(roomID) + "." + string(playerID)
}

// PresenceWildcard matches every heartbeat in a room.
func PresenceWildcard(roomID sharedtypes.RoomID) string {
	return "presence." + string(roomID) + ".*"
}

// RoomChangePayloadV1 is emitted after every write to a room row.
type RoomChangePayloadV1 struct {
	Op  Op              `json:"op"`
	New roomtypes.Room  `json:"new"`
	Old *roomtypes.Room `json:"old,omitempty"`
}

// PlayerChangePayloadV1 is emitted after every write to a player row.
type PlayerChangePayloadV1 struct {
	Op  Op                `json:"op"`
	New roomtypes.Player  `json:"new"`
	Old *roomtypes.Player `json:"old,omitempty"`
}

// BuzzChangePayloadV1 is emitted after every buzz insert or winner-flag
// update.
type BuzzChangePayloadV1 struct {
	Op  Op              `json:"op"`
	New gametypes.Buzz  `json:"new"`
	Old *gametypes.Buzz `json:"old,omitempty"`
}

// RoundStartedSignalV1 is broadcast (not persisted) when the scheduled
// round-start instant arrives.
type RoundStartedSignalV1 struct {
	RoomID    sharedtypes.RoomID `json:"room_id"`
	SongID    sharedtypes.SongID `json:"song_id"`
	StartedAt string             `json:"started_at"`
}

// ReactionSignalV1 is an emoji reaction relayed over the broadcast channel.
// Transport only; it never touches game state.
type ReactionSignalV1 struct {
	PlayerID sharedtypes.PlayerID `json:"player_id"`
	Emoji    string               `json:"emoji"`
}

// RevealSignalV1 announces the host revealed the answer. Advisory; clients
// that miss it converge on the next round's row changes.
type RevealSignalV1 struct {
	RoomID sharedtypes.RoomID `json:"room_id"`
	SongID sharedtypes.SongID `json:"song_id"`
}

// PauseSignalV1 announces the host paused or resumed playback. Advisory.
type PauseSignalV1 struct {
	RoomID sharedtypes.RoomID `json:"room_id"`
	Paused bool               `json:"paused"`
}

// Signal type tags carried in the broadcast envelope.
const (
	SignalRoundStarted = "round_started"
	SignalReaction     = "reaction"
	SignalReveal       = "reveal"
	SignalPause        = "pause"
)

// SignalEnvelopeV1 wraps one broadcast signal so consumers of the shared
// subject can dispatch on Type before decoding.
type SignalEnvelopeV1 struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeSignal wraps payload in a typed envelope ready for broadcast.
func EncodeSignal(signalType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s signal: %w", signalType, err)
	}
	return json.Marshal(SignalEnvelopeV1{Type: signalType, Payload: body})
}

// Publisher is the slice of the event bus the change producers need.
type Publisher interface {
	Publish(ctx context.Context, subject string, msg *message.Message) error
}

// Publish marshals payload and publishes it on subject with a fresh UUID,
// mirroring how every service in this codebase emits events.
func Publish(ctx context.Context, pub Publisher, subject string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("subject", subject)
	if err := pub.Publish(ctx, subject, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}
