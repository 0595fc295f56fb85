package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weiawesome/trailchat/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.RoomModel{}))
	return db
}

func newRoom(id string, participants ...string) *domain.Room {
	now := time.Now().UTC()
	return &domain.Room{
		ID:           id,
		Name:         "room " + id,
		Type:         domain.RoomTypeGroup,
		Participants: participants,
		Admins:       participants[:1],
		CreatedBy:    participants[0],
		IsActive:     true,
		Settings:     domain.DefaultRoomSettings(),
		LastActivity: now,
		CreatedAt:    now,
	}
}

func TestGormRoomRepository_CreateGet(t *testing.T) {
	repo := NewGormRoomRepository(setupTestDB(t))
	ctx := context.Background()

	room := newRoom("r1", "u1", "u2")
	require.NoError(t, repo.Create(ctx, room))
	assert.Equal(t, int64(1), room.Version)

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Participants)
	assert.Equal(t, []string{"u1"}, got.Admins)
	assert.True(t, got.Settings.AllowInvites)
	assert.Equal(t, domain.DefaultMaxParticipants, got.Settings.MaxParticipants)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestGormRoomRepository_UpdateIsVersioned(t *testing.T) {
	repo := NewGormRoomRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRoom("r1", "u1")))

	first, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)

	first.Participants = append(first.Participants, "u2")
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Participants = append(second.Participants, "u3")
	assert.ErrorIs(t, repo.Update(ctx, second), ErrVersionConflict)

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Participants)
}

func TestGormRoomRepository_ListActiveByParticipant(t *testing.T) {
	repo := NewGormRoomRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRoom("r1", "u1", "u2")))
	require.NoError(t, repo.Create(ctx, newRoom("r2", "u10")))
	inactive := newRoom("r3", "u1")
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, inactive))

	rooms, err := repo.ListActiveByParticipant(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "r1", rooms[0].ID)

	rooms, err = repo.ListActiveByParticipant(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
