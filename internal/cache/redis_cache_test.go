package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/trailchat/internal/domain"
)

func TestRedisRoomCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisRoomCache(client, "chat:room")
	ctx := context.Background()

	_, err := c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	room := &domain.Room{ID: "r1", Name: "Trailheads", Participants: []string{"u1"}, Admins: []string{"u1"}, IsActive: true, Version: 3}
	require.NoError(t, c.Set(ctx, room, time.Minute))
	assert.True(t, mr.Exists("chat:room:id:r1"))

	got, err := c.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Trailheads", got.Name)
	assert.Equal(t, int64(3), got.Version)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, room, time.Minute))
	require.NoError(t, c.Delete(ctx, "r1"))
	_, err = c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Delete(ctx))
}
