package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topics carried on the in-process event bus.
const (
	TopicRegistryChanged = "registry.changed"
	TopicSyncRequested   = "sync.requested"
)

// Kinds of registry record.
const (
	KindEndpoint = "endpoint"
	KindFeature  = "feature"
)

// ChangeEvent announces a committed registry mutation.
type ChangeEvent struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
	Op   string `json:"op"`
}

// SyncRequest asks the background worker for a full sync.
type SyncRequest struct {
	RequestID string `json:"requestId,omitempty"`
	Actor     string `json:"actor,omitempty"`
}

// Bus is the in-process publish/subscribe channel between the registry, caches and the sync worker.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger *slog.Logger
}

// NewBus creates an in-process event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewSlogLogger(logger),
		),
		logger: logger,
	}
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return b.pubSub.Publish(topic, message.NewMessage(watermill.NewUUID(), data))
}

// Subscribe returns the message channel for topic. It is closed when ctx ends or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, topic)
}

// Close shuts the bus down and closes all subscriptions.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// publishChange sends a change event, logging rather than failing on error:
// the mutation is already committed.
func (b *Bus) publishChange(kind string, id int64, op string) {
	if b == nil {
		return
	}
	if err := b.Publish(TopicRegistryChanged, ChangeEvent{Kind: kind, ID: id, Op: op}); err != nil {
		b.logger.Warn("failed to publish change event", "kind", kind, "id", id, "op", op, "error", err)
	}
}

// ConsumeChanges calls handle for every change event until ctx ends.
func (b *Bus) ConsumeChanges(ctx context.Context, handle func(ChangeEvent)) error {
	messages, err := b.Subscribe(ctx, TopicRegistryChanged)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var evt ChangeEvent
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Error("failed to decode change event", "error", err)
				msg.Ack()
				continue
			}
			handle(evt)
			msg.Ack()
		}
	}()
	return nil
}
