package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/soundforge/soundforge/pkg/events"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event any

			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			switch eventType {
			case events.SessionOpenedEvent:
				event = &events.SessionOpened{}
			case events.SessionClosedEvent:
				event = &events.SessionClosed{}
			case events.NodeAddedEvent:
				event = &events.NodeAdded{}
			case events.NodeRemovedEvent:
				event = &events.NodeRemoved{}
			case events.PinsConnectedEvent:
				event = &events.PinsConnected{}
			case events.PinsDisconnectedEvent:
				event = &events.PinsDisconnected{}
			case events.TransientBuiltEvent:
				event = &events.TransientBuilt{}
			case events.TransientOverwrittenEvent:
				event = &events.TransientOverwritten{}
			case events.AssetPersistedEvent:
				event = &events.AssetPersisted{}
			case events.AssetReopenedEvent:
				event = &events.AssetReopened{}
			case events.LiveUpdateAppliedEvent:
				event = &events.LiveUpdateApplied{}
			case events.AuditionStartedEvent:
				event = &events.AuditionStarted{}
			case events.AuditionStoppedEvent:
				event = &events.AuditionStopped{}
			default:
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
