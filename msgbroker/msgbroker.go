package msgbroker

import (
	"context"
	"errors"
	"fmt"

	"github.com/textileio/lane-core/auctioneer"
)

// TopicHandler is function that processes a received message.
// If no error is returned, the message will be automatically acked.
// If an error is returned, the message will be automatically nacked.
type TopicHandler func(context.Context, []byte) error

// MsgBroker is a message-broker for async message communication.
type MsgBroker interface {
	// RegisterTopicHandler registers a handler to a topic, with a defined
	// subscription defined by the underlying implementation. Is highly recommended
	// to register handlers in a type-safe way using RegisterHandlers().
	RegisterTopicHandler(topic TopicName, handler TopicHandler, opts ...Option) error

	// PublishMsg publishes a message to the desired topic.
	PublishMsg(ctx context.Context, topicName TopicName, data []byte) error
}

// TopicName is a topic name.
type TopicName string

const (
	// LiveEventsTopic is the topic name for auction live events.
	LiveEventsTopic TopicName = "auction-live-events"
	// VendorNotificationsTopic is the topic name for vendor notification decisions.
	VendorNotificationsTopic TopicName = "vendor-notifications"
)

// LiveEventListener is a handler for auction-live-events topic.
type LiveEventListener interface {
	OnLiveEvent(context.Context, auctioneer.LiveEvent) error
}

// NotificationListener is a handler for vendor-notifications topic.
type NotificationListener interface {
	OnVendorNotification(context.Context, auctioneer.Notification) error
}

// RegisterHandlers automatically calls mb.RegisterTopicHandler in the methods that
// s might satisfy on known XXXListener interfaces. This allows to automatically wire
// s to receive messages from topics of implemented handlers.
func RegisterHandlers(mb MsgBroker, s interface{}, opts ...Option) error {
	var countRegistered int
	if l, ok := s.(LiveEventListener); ok {
		countRegistered++
		err := mb.RegisterTopicHandler(LiveEventsTopic, func(ctx context.Context, data []byte) error {
			e, err := decodeLiveEvent(data)
			if err != nil {
				return fmt.Errorf("unmarshal live event: %s", err)
			}
			if err := l.OnLiveEvent(ctx, e); err != nil {
				return fmt.Errorf("calling on-live-event handler: %s", err)
			}
			return nil
		}, opts...)
		if err != nil {
			return fmt.Errorf("registering handler for auction-live-events topic: %s", err)
		}
	}

	if l, ok := s.(NotificationListener); ok {
		countRegistered++
		err := mb.RegisterTopicHandler(VendorNotificationsTopic, func(ctx context.Context, data []byte) error {
			n, err := decodeNotification(data)
			if err != nil {
				return fmt.Errorf("unmarshal vendor notification: %s", err)
			}
			if err := l.OnVendorNotification(ctx, n); err != nil {
				return fmt.Errorf("calling on-vendor-notification handler: %s", err)
			}
			return nil
		}, opts...)
		if err != nil {
			return fmt.Errorf("registering handler for vendor-notifications topic: %s", err)
		}
	}

	if countRegistered == 0 {
		return errors.New("no handlers were registered")
	}

	return nil
}
