// Package feed turns the raw row-change subjects of one room into a single
// stream of typed domain events for the orchestrator.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	gametypes "github.com/julienbrs/blindtest-sub000/app/modules/game/domain"
	roomtypes "github.com/julienbrs/blindtest-sub000/app/modules/room/domain"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// EventKind tags the decoded event type.
type EventKind string

const (
	KindRoomChanged   EventKind = "room_changed"
	KindPlayerChanged EventKind = "player_changed"
	KindBuzzChanged   EventKind = "buzz_changed"
)

// Event is one decoded change-feed event. Exactly one of Room, Player or Buzz
// is set, matching Kind.
type Event struct {
	Kind   EventKind
	Op     storeevents.Op
	Room   *roomtypes.Room
	Player *roomtypes.Player
	Buzz   *gametypes.Buzz
}

// Subscriber is the slice of the event bus the adapter consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error)
}

// Metrics is the recorder slice the adapter needs.
type Metrics interface {
	RecordFeedEvent(ctx context.Context, kind string)
}

// resubscribeDelay paces reconnect attempts after a dropped subscription.
// Events missed during the gap are not backfilled here; the orchestrator's
// reconciliation recovers them.
const resubscribeDelay = time.Second

// Adapter multiplexes the three table streams of one room onto one channel.
// Delivery to the consumer is at-least-once and unordered across streams,
// same as the underlying contract.
type Adapter struct {
	roomID    sharedtypes.RoomID
	bus       Subscriber
	logger    *slog.Logger
	metrics   Metrics
	out       chan Event
	startOnce sync.Once
}

// NewAdapter builds an adapter for roomID. Call Start to begin delivery.
func NewAdapter(roomID sharedtypes.RoomID, bus Subscriber, logger *slog.Logger, metrics Metrics) *Adapter {
	return &Adapter{
		roomID:  roomID,
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		out:     make(chan Event, 64),
	}
}

// Events is the adapter's output stream. Closed once Start's context ends and
// every pump has stopped.
func (a *Adapter) Events() <-chan Event {
	return a.out
}

// Start subscribes to the room's three change subjects and pumps decoded
// events until ctx is done. Each subject is consumed on its own goroutine and
// resubscribed if its stream closes, preserving per-subject ordering. Start is
// single-shot: only the first call subscribes, later calls are no-ops, so the
// output channel is closed exactly once no matter how the adapter is wired.
func (a *Adapter) Start(ctx context.Context) error {
	var startErr error
	a.startOnce.Do(func() { startErr = a.start(ctx) })
	return startErr
}

func (a *Adapter) start(ctx context.Context) error {
	subjects := []struct {
		subject string
		decode  func(payload []byte) (Event, error)
	}{
		{storeevents.RoomSubject(a.roomID), a.decodeRoom},
		{storeevents.PlayerSubject(a.roomID), a.decodePlayer},
		{storeevents.BuzzSubject(a.roomID), a.decodeBuzz},
	}

	var pumps sync.WaitGroup
	for _, sub := range subjects {
		messages, err := a.bus.Subscribe(ctx, sub.subject)
		if err != nil {
			return err
		}
		pumps.Add(1)
		go func(subject string, messages <-chan *message.Message, decode func([]byte) (Event, error)) {
			defer pumps.Done()
			a.pump(ctx, subject, messages, decode)
		}(sub.subject, messages, sub.decode)
	}

	// Close the output only after every pump returned; a pump may still be
	// mid-send when ctx ends.
	go func() {
		pumps.Wait()
		close(a.out)
	}()
	return nil
}

func (a *Adapter) pump(ctx context.Context, subject string, messages <-chan *message.Message, decode func([]byte) (Event, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				// Stream dropped; resubscribe. The gap is covered by
				// reconciliation, not by replay.
				a.logger.Warn("Change-feed stream closed, resubscribing",
					attr.String("subject", subject),
				)
				var err error
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(resubscribeDelay):
					}
					messages, err = a.bus.Subscribe(ctx, subject)
					if err == nil {
						break
					}
					a.logger.Error("Resubscribe failed",
						attr.String("subject", subject),
						attr.Error(err),
					)
				}
				continue
			}

			event, err := decode(msg.Payload)
			if err != nil {
				a.logger.Error("Failed to decode change event",
					attr.String("subject", subject),
					attr.Error(err),
				)
				msg.Ack()
				continue
			}
			if a.metrics != nil {
				a.metrics.RecordFeedEvent(ctx, string(event.Kind))
			}
			select {
			case a.out <- event:
			case <-ctx.Done():
				return
			}
			msg.Ack()
		}
	}
}

func (a *Adapter) decodeRoom(payload []byte) (Event, error) {
	var change storeevents.RoomChangePayloadV1
	if err := json.Unmarshal(payload, &change); err != nil {
		return Event{}, err
	}
	return Event{Kind: KindRoomChanged, Op: change.Op, Room: &change.New}, nil
}

func (a *Adapter) decodePlayer(payload []byte) (Event, error) {
	var change storeevents.PlayerChangePayloadV1
	if err := json.Unmarshal(payload, &change); err != nil {
		return Event{}, err
	}
	return Event{Kind: KindPlayerChanged, Op: change.Op, Player: &change.New}, nil
}

func (a *Adapter) decodeBuzz(payload []byte) (Event, error) {
	var change storeevents.BuzzChangePayloadV1
	if err := json.Unmarshal(payload, &change); err != nil {
		return Event{}, err
	}
	return Event{Kind: KindBuzzChanged, Op: change.Op, Buzz: &change.New}, nil
}
