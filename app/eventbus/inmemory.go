package eventbus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// inMemoryEventBus backs the same EventBus contract with Watermill's
// gochannel pub/sub. Used by unit tests and local single-process play, where
// every simulated client shares one bus instance.
type inMemoryEventBus struct {
	pubSub *gochannel.GoChannel
}

// NewInMemoryEventBus returns a process-local bus. Subscribers only see
// messages published after they subscribed, which matches the change-feed
// contract (missed events are recovered by reconciliation, not backfill).
func NewInMemoryEventBus(logger watermill.LoggerAdapter) EventBus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &inMemoryEventBus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger),
	}
}

func (eb *inMemoryEventBus) Publish(ctx context.Context, subject string, msg *message.Message) error {
	if msg.UUID == "" {
		msg.UUID = watermill.NewUUID()
	}
	msg.Metadata.Set("subject", subject)
	return eb.pubSub.Publish(subject, msg)
}

func (eb *inMemoryEventBus) Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error) {
	return eb.pubSub.Subscribe(ctx, subject)
}

func (eb *inMemoryEventBus) Broadcast(ctx context.Context, subject string, payload []byte) error {
	return eb.Publish(ctx, subject, message.NewMessage(watermill.NewUUID(), payload))
}

func (eb *inMemoryEventBus) Close() error {
	return eb.pubSub.Close()
}
