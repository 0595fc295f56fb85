package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/trailchat/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	// ErrVersionConflict means the room changed since it was read.
	ErrVersionConflict = errors.New("room version conflict")
)

// RoomRepository defines the interface for room data persistence.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	ListActiveByParticipant(ctx context.Context, userID string) ([]domain.Room, error)
	// Update stores room if its Version still matches the stored one and
	// bumps Version on success.
	Update(ctx context.Context, room *domain.Room) error
}
