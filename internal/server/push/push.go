// Package push delivers events to offline users' push subscriptions.
package push

import (
	"context"

	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/notify"
)

// LogPusher records push deliveries in the log instead of talking to a push
// gateway. It stands in wherever no web-push credentials are configured.
type LogPusher struct {
	log logging.Logger
}

func NewLogPusher(log logging.Logger) *LogPusher {
	return &LogPusher{log: log}
}

func (p *LogPusher) Push(ctx context.Context, subscription string, ev *notify.Event) error {
	p.log.Info(ctx, "push notification",
		"kind", ev.Kind, "from", ev.From, "to", ev.To, "subscription_bytes", len(subscription))
	return nil
}

var _ notify.Pusher = (*LogPusher)(nil)
