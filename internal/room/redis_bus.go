package room

import (
	"context"

	"learnhub-backend/internal/database"
)

// RedisBus is a Bus with one Redis pub/sub channel per room
type RedisBus struct {
	client *database.RedisClient
}

// NewRedisBus creates a new RedisBus
func NewRedisBus(client *database.RedisClient) *RedisBus {
	return &RedisBus{client: client}
}

// Topic is the pub/sub channel carrying the broadcasts of a room
func Topic(channel string) string {
	return "room:" + channel
}

// Publish implements Bus
func (b *RedisBus) Publish(ctx context.Context, channel string, broadcast *Broadcast) error {
	return b.client.PublishJSON(ctx, Topic(channel), broadcast)
}

// Subscribe implements Bus. The returned channel closes when ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan *Broadcast, error) {
	return database.SubscribeJSON[Broadcast](ctx, b.client, Topic(channel), 64)
}
