package msgbroker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/textileio/lane-core/auctioneer"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// PublishMsgLiveEvent publishes a live event to the auction-live-events topic.
func PublishMsgLiveEvent(ctx context.Context, mb MsgBroker, e auctioneer.LiveEvent) error {
	return marshalAndPublish(ctx, mb, LiveEventsTopic, e)
}

// PublishMsgNotification publishes a vendor notification to the vendor-notifications topic.
func PublishMsgNotification(ctx context.Context, mb MsgBroker, n auctioneer.Notification) error {
	return marshalAndPublish(ctx, mb, VendorNotificationsTopic, n)
}

func marshalAndPublish(ctx context.Context, mb MsgBroker, topic TopicName, v interface{}) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %s", err)
	}
	if err := mb.PublishMsg(ctx, topic, data); err != nil {
		return fmt.Errorf("publishing message to %s topic: %s", topic, err)
	}
	return nil
}

func decodeLiveEvent(data []byte) (auctioneer.LiveEvent, error) {
	var e auctioneer.LiveEvent
	if err := cbor.Unmarshal(data, &e); err != nil {
		return auctioneer.LiveEvent{}, err
	}
	if e.ID == "" {
		return auctioneer.LiveEvent{}, errors.New("event id is empty")
	}
	if e.Type == "" {
		return auctioneer.LiveEvent{}, errors.New("event type is empty")
	}
	return e, nil
}

func decodeNotification(data []byte) (auctioneer.Notification, error) {
	var n auctioneer.Notification
	if err := cbor.Unmarshal(data, &n); err != nil {
		return auctioneer.Notification{}, err
	}
	if n.ID == "" {
		return auctioneer.Notification{}, errors.New("notification id is empty")
	}
	if n.VendorID == "" {
		return auctioneer.Notification{}, errors.New("vendor id is empty")
	}
	return n, nil
}
