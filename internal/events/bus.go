// Package events carries domain events between services over an in-process
// watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ikkim/storefront-backend/pkg/logger"
)

const TopicOrderConfirmed = "order.confirmed"

// OrderConfirmed is published once per order, when it enters CONFIRMED.
type OrderConfirmed struct {
	OrderID     uint      `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Source      string    `json:"source"` // verify, webhook, exchange
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, evt OrderConfirmed) error
}

// Bus is a watermill GoChannel used as the service event bus.
type Bus struct {
	pubSub *gochannel.GoChannel
}

func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false)),
	}
}

func (b *Bus) PublishOrderConfirmed(ctx context.Context, evt OrderConfirmed) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order confirmed event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("order_id", strconv.FormatUint(uint64(evt.OrderID), 10))

	if err := b.pubSub.Publish(TopicOrderConfirmed, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicOrderConfirmed, err)
	}

	logger.Debug("Published order confirmed event", map[string]interface{}{
		"order_id":   evt.OrderID,
		"message_id": msg.UUID,
	})
	return nil
}

// SubscribeOrderConfirmed runs handler for every order.confirmed message until
// ctx is cancelled. Handler failures are logged and acknowledged; the tracking
// poller picks up confirmed orders that still lack a shipment.
func (b *Bus) SubscribeOrderConfirmed(ctx context.Context, handler func(context.Context, OrderConfirmed) error) error {
	messages, err := b.pubSub.Subscribe(ctx, TopicOrderConfirmed)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var evt OrderConfirmed
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				logger.Error("Dropping malformed order confirmed event", err, map[string]interface{}{
					"message_id": msg.UUID,
				})
				msg.Ack()
				continue
			}

			if err := handler(ctx, evt); err != nil {
				logger.Error("Order confirmed handler failed", err, map[string]interface{}{
					"order_id":   evt.OrderID,
					"message_id": msg.UUID,
				})
			}
			msg.Ack()
		}
	}()

	return nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
