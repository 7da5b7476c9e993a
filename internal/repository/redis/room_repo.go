package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"learnhub-backend/internal/database"
	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/logger"
)

// rosterStore is the part of the Redis client the room repository talks to
type rosterStore interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RoomRepository keeps the members of every group call room in a Redis hash,
// one field per user holding the participant as JSON
type RoomRepository struct {
	client *database.RedisClient
	store  rosterStore
	ttl    time.Duration
}

// NewRoomRepository creates a new RoomRepository
func NewRoomRepository(client *database.RedisClient) *RoomRepository {
	return &RoomRepository{
		client: client,
		store:  client.Client,
		ttl:    constants.RoomRosterTTL,
	}
}

func rosterKey(channel string) string {
	return fmt.Sprintf("room:%s:members", channel)
}

// Save adds or replaces participant in the roster of channel
func (r *RoomRepository) Save(ctx context.Context, channel string, participant domain.Participant) error {
	if r.client.IsDegraded() {
		return database.ErrDegraded
	}

	data, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	key := rosterKey(channel)
	if err := r.store.HSet(ctx, key, participant.UserID.String(), data).Err(); err != nil {
		return fmt.Errorf("failed to save room member: %w", err)
	}
	if err := r.store.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set room roster expiry: %w", err)
	}
	return nil
}

// Remove drops userID from the roster of channel
func (r *RoomRepository) Remove(ctx context.Context, channel string, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return database.ErrDegraded
	}

	if err := r.store.HDel(ctx, rosterKey(channel), userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove room member: %w", err)
	}
	return nil
}

// Members returns the roster of channel in no particular order
func (r *RoomRepository) Members(ctx context.Context, channel string) ([]domain.Participant, error) {
	if r.client.IsDegraded() {
		return nil, database.ErrDegraded
	}

	fields, err := r.store.HGetAll(ctx, rosterKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room members: %w", err)
	}

	members := make([]domain.Participant, 0, len(fields))
	for userID, raw := range fields {
		var participant domain.Participant
		if err := json.Unmarshal([]byte(raw), &participant); err != nil {
			logger.Warn("Skipping malformed room member",
				zap.String("channel", channel),
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		members = append(members, participant)
	}
	return members, nil
}
