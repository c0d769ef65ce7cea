package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lostpaws/pkg/logger"
)

const channel = "lostpaws-chat-events"

// RedisBridge mirrors local publishes to a Redis channel and feeds events from
// other instances into the local bus, so viewers connected to any instance see
// the same stream. Loop prevention: each instance tags its events with an
// origin id and skips its own on receive.
type RedisBridge struct {
	bus    *Bus
	rdb    *redis.Client
	origin string
}

func NewRedisBridge(bus *Bus, rdb *redis.Client) *RedisBridge {
	return &RedisBridge{
		bus:    bus,
		rdb:    rdb,
		origin: uuid.New().String(),
	}
}

// redisEvent carries the viewer targets across the wire; Event.Viewers is
// json-ignored for subscribers but the remote instance needs it to route.
type redisEvent struct {
	Event
	TargetViewers []string `json:"target_viewers"`
}

func (b *RedisBridge) Publish(ev Event) {
	b.bus.Publish(ev)

	ev.Origin = b.origin
	payload, err := json.Marshal(redisEvent{Event: ev, TargetViewers: ev.Viewers})
	if err != nil {
		logger.Error("notify: marshal event for redis: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), channel, payload).Err(); err != nil {
		// Swallowed: a notification outage must never fail the write path.
		logger.Warn("notify: redis publish failed: %v", err)
	}
}

// Run consumes remote events until ctx is cancelled. Call in a goroutine.
func (b *RedisBridge) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev redisEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("notify: bad event on %s: %v", channel, err)
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			ev.Event.Viewers = ev.TargetViewers
			b.bus.Publish(ev.Event)
		case <-ctx.Done():
			return
		}
	}
}
