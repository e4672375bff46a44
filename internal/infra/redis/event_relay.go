package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
)

// DefaultChannel is the pub/sub channel shared by every instance.
const DefaultChannel = "quizroom:events"

// Deliverer hands an event to the locally connected clients.
type Deliverer interface {
	Deliver(event domain.Event) int
}

// EventRelay fans room events out across instances. Publish writes to a
// Redis channel; Run receives from it and delivers to the local hub, so an
// instance sees its own events through the same path as its peers'.
type EventRelay struct {
	client  *redis.Client
	channel string
	local   Deliverer
	ready   chan struct{}
}

func NewEventRelay(client *redis.Client, local Deliverer, channel string) *EventRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &EventRelay{
		client:  client,
		channel: channel,
		local:   local,
		ready:   make(chan struct{}),
	}
}

type wireEvent struct {
	Group   string          `json:"group"`
	Name    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Publish sends the event to every instance. When Redis is unreachable the
// event is still delivered locally and the error is returned for logging.
func (r *EventRelay) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Name, err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.local.Deliver(event)
		return fmt.Errorf("publish event %s: %w", event.Name, err)
	}
	return nil
}

// Ready is closed once Run holds a confirmed subscription.
func (r *EventRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to the channel and delivers every message until ctx ends.
func (r *EventRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	config.Logger.WithField("channel", r.channel).Info("event relay subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var in wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil {
				config.Logger.WithError(err).Warn("dropping malformed relay message")
				continue
			}
			n := r.local.Deliver(domain.Event{Group: in.Group, Name: in.Name, Payload: in.Payload})
			config.Logger.WithFields(logrus.Fields{
				"group":      in.Group,
				"event":      in.Name,
				"recipients": n,
			}).Debug("relayed event")
		}
	}
}
