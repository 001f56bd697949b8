package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope wraps an event with its originating instance so a relay consumer
// can suppress its own publishes.
type envelope struct {
	Instance string `json:"instance"`
	Event    Event  `json:"event"`
}

// RedisRelay fans room events out across service instances over a Redis
// pub/sub channel. Delivery between instances is best-effort, matching the
// per-connection contract.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        *Hub
	logger     *zap.Logger
}

// NewRedisRelay builds a relay for the given hub.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		hub:        hub,
		logger:     logger,
	}
}

// Publish sends a locally originated event to sibling instances.
func (r *RedisRelay) Publish(event Event) {
	payload, err := json.Marshal(envelope{Instance: r.instanceID, Event: event})
	if err != nil {
		r.logger.Error("relay marshal", zap.Error(err))
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.logger.Warn("relay publish", zap.Error(err))
	}
}

// Start subscribes to the relay channel and re-broadcasts remote events to
// local rooms until ctx is cancelled.
func (r *RedisRelay) Start(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.consume(msg.Payload)
			}
		}
	}()
}

func (r *RedisRelay) consume(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("relay decode", zap.Error(err))
		return
	}
	if env.Instance == r.instanceID {
		return
	}
	r.hub.deliverLocal(env.Event.TicketID, env.Event)
}
