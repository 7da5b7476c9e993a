package signaling

import (
	"context"

	"learnhub-backend/internal/database"
)

// RelayChannel is the Redis pub/sub channel shared by every instance
const RelayChannel = "signaling:relay"

// RedisBus is a Bus on Redis pub/sub
type RedisBus struct {
	client *database.RedisClient
}

// NewRedisBus creates a new RedisBus
func NewRedisBus(client *database.RedisClient) *RedisBus {
	return &RedisBus{client: client}
}

// Publish implements Bus
func (b *RedisBus) Publish(ctx context.Context, envelope *Envelope) error {
	return b.client.PublishJSON(ctx, RelayChannel, envelope)
}

// Subscribe implements Bus. The returned channel closes when ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan *Envelope, error) {
	return database.SubscribeJSON[Envelope](ctx, b.client, RelayChannel, 256)
}
