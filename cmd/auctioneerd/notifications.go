package main

import (
	"context"

	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/msgbroker"
)

// notificationLogger logs the vendor notifications the engine decided to send.
// Delivery belongs to whatever consumes the vendor-notifications topic.
type notificationLogger struct{}

var _ msgbroker.NotificationListener = notificationLogger{}

func (notificationLogger) OnVendorNotification(_ context.Context, n core.Notification) error {
	log.Infof("notification %s for vendor %s (%s): %s", n.ID, n.VendorID, n.Kind, n.Message)
	return nil
}
