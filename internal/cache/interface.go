package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/trailchat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RoomCache caches room documents by id.
type RoomCache interface {
	Get(ctx context.Context, roomID string) (*domain.Room, error)
	Set(ctx context.Context, room *domain.Room, ttl time.Duration) error
	Delete(ctx context.Context, roomIDs ...string) error
}
