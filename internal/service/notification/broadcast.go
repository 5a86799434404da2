package notification

import (
	"context"
	"time"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/messaging"
	"github.com/jwalitptl/dashboard-notifications/pkg/metrics"
)

// FeedEventType tags broadcast feed snapshots.
const FeedEventType = "dashboard.notifications.feed"

// NewBroadcaster returns a Listener that publishes every state on channel.
// Publish failures are logged and counted; they never reach the feed.
func NewBroadcaster(pub messaging.Publisher, channel string, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) Listener {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(st model.FeedState) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		msg := messaging.Message{Type: FeedEventType, Payload: st}
		if err := pub.Publish(ctx, channel, msg); err != nil {
			if m != nil {
				m.BroadcastTotal.WithLabelValues("error").Inc()
			}
			log.Error(err, "failed to broadcast notification feed", "channel", channel)
			return
		}
		if m != nil {
			m.BroadcastTotal.WithLabelValues("success").Inc()
		}
	}
}
