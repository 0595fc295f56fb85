package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/trailchat/pkg/pubsub"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "presence"), mr
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	rec, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, Record{UserID: "u1", Online: true, InstanceID: "a", UpdatedAt: at}, time.Minute))

	rec, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Online)
	assert.Equal(t, "a", rec.InstanceID)
	assert.True(t, at.Equal(rec.UpdatedAt))
	assert.Equal(t, time.Minute, mr.TTL("presence:user:u1"))

	require.NoError(t, s.Delete(ctx, "u1", "b"))
	assert.True(t, mr.Exists("presence:user:u1"), "other instances cannot clear the record")

	require.NoError(t, s.Delete(ctx, "u1", "a"))
	assert.False(t, mr.Exists("presence:user:u1"))

	require.NoError(t, s.Set(ctx, Record{UserID: "u2", Online: true, InstanceID: "a", UpdatedAt: at}, time.Minute))
	mr.FastForward(2 * time.Minute)
	rec, err = s.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, rec, "records expire without a heartbeat")
}

func TestTracker_LocalView(t *testing.T) {
	s, mr := newRedisStore(t)
	tr := NewTracker(s, pubsub.NewMemoryPubSub(), Config{InstanceID: "a", TTL: time.Minute})
	ctx := context.Background()

	var mu sync.Mutex
	var onlined []string
	tr.OnOnline(func(_ context.Context, userID string) {
		mu.Lock()
		onlined = append(onlined, userID)
		mu.Unlock()
	})

	assert.False(t, tr.IsOnlineLocally("u1"))

	tr.SetOnline(ctx, "u1")
	tr.SetOnline(ctx, "u1")
	assert.True(t, tr.IsOnlineLocally("u1"))
	assert.True(t, mr.Exists("presence:user:u1"))
	assert.Equal(t, []string{"u1", "u1"}, onlined)

	rec, err := tr.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Online)
	assert.Equal(t, "a", rec.InstanceID)

	tr.SetOffline(ctx, "u1")
	assert.False(t, tr.IsOnlineLocally("u1"))
	assert.False(t, mr.Exists("presence:user:u1"))

	rec, err = tr.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, rec.Online)
}

func TestTracker_LookupFallsBackToSharedStore(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	a := NewTracker(s, nil, Config{InstanceID: "a"})
	b := NewTracker(s, nil, Config{InstanceID: "b"})

	a.SetOnline(ctx, "u1")
	assert.False(t, b.IsOnlineLocally("u1"))

	rec, err := b.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Online)
	assert.Equal(t, "a", rec.InstanceID)
}

func TestTracker_AppliesRemoteBroadcasts(t *testing.T) {
	bus := pubsub.NewMemoryPubSub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewTracker(nil, bus, Config{InstanceID: "a"})
	b := NewTracker(nil, bus, Config{InstanceID: "b"})
	go b.Run(ctx)

	// The subscription starts asynchronously; SetOnline is idempotent.
	require.Eventually(t, func() bool {
		a.SetOnline(ctx, "u1")
		rec, err := b.Lookup(ctx, "u1")
		return err == nil && rec.Online && rec.InstanceID == "a"
	}, 2*time.Second, 20*time.Millisecond)
	assert.False(t, b.IsOnlineLocally("u1"))

	a.SetOffline(ctx, "u1")
	require.Eventually(t, func() bool {
		rec, err := b.Lookup(ctx, "u1")
		return err == nil && !rec.Online
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTracker_IgnoresStaleOfflineFromOtherInstance(t *testing.T) {
	b := NewTracker(nil, nil, Config{InstanceID: "b"})
	ctx := context.Background()

	online, err := pubsub.NewEvent(pubsub.EventUserOnline, "u1", "c", pubsub.PresencePayload{UserID: "u1", Online: true, InstanceID: "c"})
	require.NoError(t, err)
	b.apply(ctx, online)

	offline, err := pubsub.NewEvent(pubsub.EventUserOffline, "u1", "a", pubsub.PresencePayload{UserID: "u1", InstanceID: "a"})
	require.NoError(t, err)
	b.apply(ctx, offline)

	rec, err := b.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Online)
	assert.Equal(t, "c", rec.InstanceID)
}

func TestTracker_HeartbeatRefreshesLocalUsers(t *testing.T) {
	s, mr := newRedisStore(t)
	tr := NewTracker(s, nil, Config{InstanceID: "a", TTL: time.Minute})
	ctx := context.Background()

	tr.SetOnline(ctx, "u1")
	mr.FastForward(50 * time.Second)
	tr.heartbeat(ctx)
	mr.FastForward(50 * time.Second)

	assert.True(t, mr.Exists("presence:user:u1"))
}
