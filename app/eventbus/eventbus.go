// Package eventbus wraps the messaging substrate behind one interface: a
// persisted, at-least-once change feed (NATS JetStream via Watermill) plus an
// ephemeral broadcast path (core NATS) for signals that carry no correctness
// weight.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventBus is the transport contract the rest of the system consumes. Publish
// and Subscribe ride the persisted change feed; Broadcast is fire-and-forget.
type EventBus interface {
	Publish(ctx context.Context, subject string, msg *message.Message) error
	Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error)
	Broadcast(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// StoreStreamName is the JetStream stream backing all row-change subjects.
const StoreStreamName = "BLINDTEST_STORE"

type natsEventBus struct {
	publisher   message.Publisher
	subscriber  message.Subscriber
	js          jetstream.JetStream
	natsConn    *nc.Conn
	logger      *slog.Logger
	streamMutex sync.Mutex
	streamReady bool
}

// NewNATSEventBus connects to NATS, sets up JetStream and the Watermill
// publisher/subscriber pair.
func NewNATSEventBus(ctx context.Context, natsURL string, logger *slog.Logger) (EventBus, error) {
	natsConn, err := nc.Connect(natsURL, nc.RetryOnFailedConnect(true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	watermillLogger := watermill.NewSlogLogger(logger)
	marshaller := &wmnats.NATSMarshaler{}

	publisher, err := wmnats.NewPublisher(
		wmnats.PublisherConfig{
			URL:       natsURL,
			Marshaler: marshaller,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
		},
		watermillLogger,
	)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	subscriber, err := wmnats.NewSubscriber(
		wmnats.SubscriberConfig{
			URL:         natsURL,
			Unmarshaler: marshaller,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
		},
		watermillLogger,
	)
	if err != nil {
		natsConn.Close()
		publisher.Close()
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}

	bus := &natsEventBus{
		publisher:  publisher,
		subscriber: subscriber,
		js:         js,
		natsConn:   natsConn,
		logger:     logger,
	}
	if err := bus.ensureStoreStream(ctx); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

// ensureStoreStream creates the change-feed stream if it does not exist yet.
func (eb *natsEventBus) ensureStoreStream(ctx context.Context) error {
	eb.streamMutex.Lock()
	defer eb.streamMutex.Unlock()

	if eb.streamReady {
		return nil
	}

	_, err := eb.js.Stream(ctx, StoreStreamName)
	if err == jetstream.ErrStreamNotFound {
		_, err = eb.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     StoreStreamName,
			Subjects: []string{"store.>"},
		})
		if err != nil {
			return fmt.Errorf("failed to create store stream: %w", err)
		}
		eb.logger.Info("Store stream created", slog.String("stream", StoreStreamName))
	} else if err != nil {
		return fmt.Errorf("failed to check store stream: %w", err)
	}

	eb.streamReady = true
	return nil
}

func (eb *natsEventBus) Publish(ctx context.Context, subject string, msg *message.Message) error {
	if msg.UUID == "" {
		msg.UUID = watermill.NewUUID()
	}
	msg.Metadata.Set("subject", subject)

	eb.logger.Debug("Publishing change event",
		slog.String("subject", subject),
		slog.String("message_id", msg.UUID),
	)

	if err := eb.publisher.Publish(subject, msg); err != nil {
		eb.logger.Error("Failed to publish change event",
			slog.String("subject", subject),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (eb *natsEventBus) Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error) {
	messages, err := eb.subscriber.Subscribe(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	eb.logger.Info("Subscription started", slog.String("subject", subject))
	return messages, nil
}

// Broadcast publishes on core NATS: no persistence, no redelivery. Suitable
// only for signals outside the correctness path.
func (eb *natsEventBus) Broadcast(ctx context.Context, subject string, payload []byte) error {
	if err := eb.natsConn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to broadcast on %s: %w", subject, err)
	}
	return nil
}

func (eb *natsEventBus) Close() error {
	if eb.publisher != nil {
		if err := eb.publisher.Close(); err != nil {
			eb.logger.Error("Error closing publisher", slog.Any("error", err))
		}
	}
	if eb.subscriber != nil {
		if err := eb.subscriber.Close(); err != nil {
			eb.logger.Error("Error closing subscriber", slog.Any("error", err))
		}
	}
	if eb.natsConn != nil {
		eb.natsConn.Close()
	}
	return nil
}
