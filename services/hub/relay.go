package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RelayChannel is the Redis channel shared by every API instance
const RelayChannel = "signals:broadcast"

// RedisRelay publishes envelopes through Redis so every instance's hub
// delivers them to its own clients.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
}

// NewRedisRelay creates a relay feeding the given hub
func NewRedisRelay(client *redis.Client, h *Hub) *RedisRelay {
	return &RedisRelay{client: client, hub: h, channel: RelayChannel}
}

// Publish sends v to the relay channel
func (r *RedisRelay) Publish(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run subscribes to the relay channel and forwards payloads to the local
// hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	log.Info().Str("channel", r.channel).Msg("Redis relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.hub.BroadcastRaw([]byte(msg.Payload)); err != nil {
				return nil
			}
		}
	}
}
