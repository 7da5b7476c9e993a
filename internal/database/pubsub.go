package database

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
)

// PublishJSON marshals v and publishes it on channel unless degraded
func (r *RedisClient) PublishJSON(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", channel, err)
	}
	if err := r.SafePublish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// SubscribeJSON subscribes to channel and decodes every message into a T.
// It returns once Redis confirmed the subscription. The returned channel closes when ctx is done.
func SubscribeJSON[T any](ctx context.Context, r *RedisClient, channel string, buffer int) (<-chan *T, error) {
	pubsub := r.Client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan *T, buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var v T
				if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
					logger.Warn("Dropping malformed pub/sub message",
						zap.String("channel", channel),
						zap.Error(err))
					continue
				}
				select {
				case out <- &v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
