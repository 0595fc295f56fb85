package service

import (
	"context"

	"github.com/weiawesome/trailchat/internal/domain"
)

// RoomService is the room registry: membership and admin rights for rooms.
type RoomService interface {
	CreateRoom(ctx context.Context, in domain.CreateRoomInput) (*domain.Room, error)
	// GetRoom returns a room visible to callerID: public rooms to anyone,
	// other rooms to participants only.
	GetRoom(ctx context.Context, callerID, roomID string) (*domain.Room, error)
	ListUserRooms(ctx context.Context, userID string) ([]domain.Room, error)
	Join(ctx context.Context, roomID, userID string) (*domain.Room, error)
	Leave(ctx context.Context, roomID, userID string) (*domain.Room, error)
	AddParticipant(ctx context.Context, roomID, callerID, targetID string) (*domain.Room, error)
	RemoveParticipant(ctx context.Context, roomID, callerID, targetID string) (*domain.Room, error)
	// IsParticipant reports whether userID belongs to the active room.
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	// Participants returns the current members of the active room.
	Participants(ctx context.Context, roomID string) ([]string, error)
}
