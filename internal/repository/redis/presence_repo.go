package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"learnhub-backend/internal/database"
)

const onlineSetKey = "presence:online"

// claimPresence takes the presence key for this instance and returns the previous owner,
// or an empty string when the key was free or already ours
var claimPresence = redis.NewScript(`
local previous = redis.call("GET", KEYS[1])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
if previous and previous ~= ARGV[1] then
	return previous
end
return ""
`)

// releasePresence deletes the presence key only if this instance still owns it
var releasePresence = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// refreshPresence extends every key still owned by this instance (or expired meanwhile)
// and returns the user ids now owned by another instance.
// KEYS[1] is the online set, KEYS[i+1] the presence key of ARGV[i+2].
var refreshPresence = redis.NewScript(`
local lost = {}
for i = 2, #KEYS do
	local owner = redis.call("GET", KEYS[i])
	if not owner or owner == ARGV[1] then
		redis.call("SET", KEYS[i], ARGV[1], "PX", ARGV[2])
		redis.call("SADD", KEYS[1], ARGV[i + 1])
	else
		lost[#lost + 1] = ARGV[i + 1]
	end
end
return lost
`)

// presenceStore is the part of the Redis client the repository talks to
type presenceStore interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
}

// PresenceRepository mirrors user online status into Redis.
// The value of each presence key is the id of the instance holding the socket.
type PresenceRepository struct {
	client     *database.RedisClient
	store      presenceStore
	instanceID string
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient, instanceID string) *PresenceRepository {
	return &PresenceRepository{
		client:     client,
		store:      client.Client,
		instanceID: instanceID,
	}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetUserOnline claims user for this instance. It returns the instance that held
// the user before, or "" when no other instance did.
func (r *PresenceRepository) SetUserOnline(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	if r.client.IsDegraded() {
		return "", database.ErrDegraded
	}

	keys := []string{presenceKey(userID), onlineSetKey}
	previous, err := claimPresence.Run(ctx, r.store, keys, r.instanceID, ttl.Milliseconds(), userID.String()).Text()
	if err != nil {
		return "", fmt.Errorf("failed to set user online: %w", err)
	}
	return previous, nil
}

// SetUserOffline marks user as offline unless another instance took over the user
func (r *PresenceRepository) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return database.ErrDegraded
	}

	keys := []string{presenceKey(userID), onlineSetKey}
	if err := releasePresence.Run(ctx, r.store, keys, r.instanceID, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// RefreshPresence extends the TTL of every given user this instance still owns (heartbeat).
// Users claimed by another instance are returned and left untouched.
func (r *PresenceRepository) RefreshPresence(ctx context.Context, userIDs []uuid.UUID, ttl time.Duration) ([]uuid.UUID, error) {
	if r.client.IsDegraded() {
		return nil, database.ErrDegraded
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(userIDs)+1)
	args := make([]any, 0, len(userIDs)+2)
	keys = append(keys, onlineSetKey)
	args = append(args, r.instanceID, ttl.Milliseconds())
	for _, userID := range userIDs {
		keys = append(keys, presenceKey(userID))
		args = append(args, userID.String())
	}

	lost, err := refreshPresence.Run(ctx, r.store, keys, args...).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh presence: %w", err)
	}

	lostIDs := make([]uuid.UUID, 0, len(lost))
	for _, raw := range lost {
		userID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		lostIDs = append(lostIDs, userID)
	}
	return lostIDs, nil
}

// Owner returns the instance holding user's socket, or "" when the user is offline
func (r *PresenceRepository) Owner(ctx context.Context, userID uuid.UUID) (string, error) {
	if r.client.IsDegraded() {
		return "", database.ErrDegraded
	}

	owner, err := r.store.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check presence: %w", err)
	}
	return owner, nil
}

// GetOnlineCount returns number of online users across instances
func (r *PresenceRepository) GetOnlineCount(ctx context.Context) (int64, error) {
	if r.client.IsDegraded() {
		return 0, database.ErrDegraded
	}

	count, err := r.store.SCard(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count online users: %w", err)
	}
	return count, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
