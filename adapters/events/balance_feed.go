package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/clearview/adapters/clearnode"
	"github.com/layer-3/clearview/core"
	"github.com/sirupsen/logrus"
)

// DefaultBalanceTopic carries ClearNode balance updates
const DefaultBalanceTopic = "clearnode.balances"

// BalanceFeed turns balance messages on a Watermill topic into
// notifications for one wallet
type BalanceFeed struct {
	subscriber message.Subscriber
	topic      string
	log        logrus.FieldLogger
}

// NewBalanceFeed creates a feed. An empty topic selects DefaultBalanceTopic.
func NewBalanceFeed(subscriber message.Subscriber, topic string, log logrus.FieldLogger) *BalanceFeed {
	if topic == "" {
		topic = DefaultBalanceTopic
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BalanceFeed{
		subscriber: subscriber,
		topic:      topic,
		log:        log.WithField("component", "balance_feed"),
	}
}

// Watch delivers every update addressed to wallet until ctx is done.
// Malformed messages are acked and skipped so they are not redelivered.
func (f *BalanceFeed) Watch(ctx context.Context, wallet common.Address, fn func(core.Tiers)) error {
	messages, err := f.subscriber.Subscribe(ctx, f.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", f.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			f.handle(wallet, msg, fn)
		}
	}
}

func (f *BalanceFeed) handle(wallet common.Address, msg *message.Message, fn func(core.Tiers)) {
	defer msg.Ack()

	var payload clearnode.BalancesMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		f.log.WithError(err).WithField("message_uuid", msg.UUID).Warn("skipping malformed balance message")
		return
	}
	if !common.IsHexAddress(payload.Wallet) || common.HexToAddress(payload.Wallet) != wallet {
		return
	}

	tiers, err := payload.Tiers()
	if err != nil {
		f.log.WithError(err).WithField("message_uuid", msg.UUID).Warn("skipping invalid balance message")
		return
	}
	fn(tiers)
}
