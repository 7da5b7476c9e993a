package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/database"
)

type scriptCall struct {
	keys []string
	args []any
}

// fakePresenceStore records script invocations and answers with canned results
type fakePresenceStore struct {
	redis.Scripter

	result any
	err    error
	calls  []scriptCall

	owner    string
	ownerErr error
	online   int64
}

func (s *fakePresenceStore) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	s.calls = append(s.calls, scriptCall{keys: keys, args: args})
	return redis.NewCmdResult(s.result, s.err)
}

func (s *fakePresenceStore) Get(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult(s.owner, s.ownerErr)
}

func (s *fakePresenceStore) SCard(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(s.online, nil)
}

func newPresenceRepo(store *fakePresenceStore) *PresenceRepository {
	return &PresenceRepository{
		client:     &database.RedisClient{},
		store:      store,
		instanceID: "instance-a",
	}
}

func TestPresenceRepository_SetUserOnlineReturnsPreviousOwner(t *testing.T) {
	store := &fakePresenceStore{result: "instance-b"}
	repo := newPresenceRepo(store)
	userID := uuid.New()

	previous, err := repo.SetUserOnline(context.Background(), userID, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "instance-b", previous)
	require.Len(t, store.calls, 1)
	assert.Equal(t, []string{"presence:" + userID.String(), onlineSetKey}, store.calls[0].keys)
	assert.Equal(t, []any{"instance-a", int64(60000), userID.String()}, store.calls[0].args)
}

func TestPresenceRepository_SetUserOnlineUnclaimed(t *testing.T) {
	repo := newPresenceRepo(&fakePresenceStore{result: ""})

	previous, err := repo.SetUserOnline(context.Background(), uuid.New(), time.Minute)

	require.NoError(t, err)
	assert.Empty(t, previous)
}

func TestPresenceRepository_SetUserOfflineComparesOwner(t *testing.T) {
	store := &fakePresenceStore{result: int64(0)}
	repo := newPresenceRepo(store)
	userID := uuid.New()

	require.NoError(t, repo.SetUserOffline(context.Background(), userID))

	require.Len(t, store.calls, 1)
	assert.Equal(t, []string{"presence:" + userID.String(), onlineSetKey}, store.calls[0].keys)
	assert.Equal(t, []any{"instance-a", userID.String()}, store.calls[0].args)
}

func TestPresenceRepository_RefreshPresenceReturnsLostUsers(t *testing.T) {
	kept, lost := uuid.New(), uuid.New()
	store := &fakePresenceStore{result: []any{lost.String(), "not-a-uuid"}}
	repo := newPresenceRepo(store)

	lostIDs, err := repo.RefreshPresence(context.Background(), []uuid.UUID{kept, lost}, 30*time.Second)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{lost}, lostIDs)
	require.Len(t, store.calls, 1)
	assert.Equal(t, []string{onlineSetKey, "presence:" + kept.String(), "presence:" + lost.String()}, store.calls[0].keys)
	assert.Equal(t, []any{"instance-a", int64(30000), kept.String(), lost.String()}, store.calls[0].args)
}

func TestPresenceRepository_RefreshPresenceNothingLost(t *testing.T) {
	repo := newPresenceRepo(&fakePresenceStore{result: []any{}})

	lostIDs, err := repo.RefreshPresence(context.Background(), []uuid.UUID{uuid.New()}, time.Minute)

	require.NoError(t, err)
	assert.Empty(t, lostIDs)
}

func TestPresenceRepository_RefreshPresenceNoUsers(t *testing.T) {
	store := &fakePresenceStore{}
	repo := newPresenceRepo(store)

	lostIDs, err := repo.RefreshPresence(context.Background(), nil, time.Minute)

	require.NoError(t, err)
	assert.Nil(t, lostIDs)
	assert.Empty(t, store.calls)
}

func TestPresenceRepository_ScriptError(t *testing.T) {
	repo := newPresenceRepo(&fakePresenceStore{err: errors.New("connection reset")})

	_, err := repo.SetUserOnline(context.Background(), uuid.New(), time.Minute)
	assert.ErrorContains(t, err, "failed to set user online")

	err = repo.SetUserOffline(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "failed to delete presence")

	_, err = repo.RefreshPresence(context.Background(), []uuid.UUID{uuid.New()}, time.Minute)
	assert.ErrorContains(t, err, "failed to refresh presence")
}

func TestPresenceRepository_Owner(t *testing.T) {
	tests := []struct {
		name    string
		store   *fakePresenceStore
		want    string
		wantErr bool
	}{
		{name: "online elsewhere", store: &fakePresenceStore{owner: "instance-b"}, want: "instance-b"},
		{name: "offline", store: &fakePresenceStore{ownerErr: redis.Nil}, want: ""},
		{name: "redis error", store: &fakePresenceStore{ownerErr: errors.New("timeout")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, err := newPresenceRepo(tt.store).Owner(context.Background(), uuid.New())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, owner)
		})
	}
}

func TestPresenceRepository_GetOnlineCount(t *testing.T) {
	count, err := newPresenceRepo(&fakePresenceStore{online: 3}).GetOnlineCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPresenceRepository_DegradedSkipsRedis(t *testing.T) {
	client, err := database.NewRedisDB(&database.RedisConfig{
		Host:     "127.0.0.1",
		Port:     1,
		PoolSize: 1,
		Timeout:  100 * time.Millisecond,
	}, nil)
	require.Error(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := &fakePresenceStore{}
	repo := &PresenceRepository{client: client, store: store, instanceID: "instance-a"}
	ctx := context.Background()

	_, err = repo.SetUserOnline(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, database.ErrDegraded)
	assert.ErrorIs(t, repo.SetUserOffline(ctx, uuid.New()), database.ErrDegraded)
	_, err = repo.RefreshPresence(ctx, []uuid.UUID{uuid.New()}, time.Minute)
	assert.ErrorIs(t, err, database.ErrDegraded)
	_, err = repo.Owner(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrDegraded)
	assert.True(t, repo.IsDegraded())
	assert.Empty(t, store.calls)
}
