package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weiawesome/trailchat/internal/cache"
	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/internal/repository"
)

func setupService(t *testing.T, cfg RoomServiceConfig) (RoomService, *miniredis.Miniredis) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.RoomModel{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := NewRoomService(repository.NewGormRoomRepository(db), cache.NewRedisRoomCache(client, "chat:room"), cfg)
	return svc, mr
}

func create(t *testing.T, svc RoomService, creator, name string, participants ...string) *domain.Room {
	t.Helper()
	room, err := svc.CreateRoom(context.Background(), domain.CreateRoomInput{
		CreatorID:    creator,
		Name:         name,
		Type:         domain.RoomTypeGroup,
		Participants: participants,
	})
	require.NoError(t, err)
	return room
}

func TestRoomService_TrailheadsLifecycle(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{})
	ctx := context.Background()

	room := create(t, svc, "U1", "Trailheads")
	assert.Equal(t, []string{"U1"}, room.Participants)
	assert.Equal(t, []string{"U1"}, room.Admins)
	assert.True(t, room.IsActive)

	room, err := svc.AddParticipant(ctx, room.ID, "U1", "U2")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, room.Participants)

	room, err = svc.Leave(ctx, room.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, room.Participants)

	room, err = svc.Leave(ctx, room.ID, "U1")
	require.NoError(t, err)
	assert.Empty(t, room.Participants)
	assert.False(t, room.IsActive)

	rooms, err := svc.ListUserRooms(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = svc.Join(ctx, room.ID, "U1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "inactive rooms cannot be revived")
	_, err = svc.AddParticipant(ctx, room.ID, "U1", "U3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.IsParticipant(ctx, room.ID, "U1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoomService_CreateValidation(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{MaxParticipants: 3})
	ctx := context.Background()

	tests := []struct {
		name string
		in   domain.CreateRoomInput
		want error
	}{
		{"empty name", domain.CreateRoomInput{CreatorID: "u1", Name: "   "}, domain.ErrValidation},
		{"bad type", domain.CreateRoomInput{CreatorID: "u1", Name: "x", Type: "secret"}, domain.ErrValidation},
		{"too many", domain.CreateRoomInput{CreatorID: "u1", Name: "x", Participants: []string{"a", "b", "c"}}, domain.ErrValidation},
		{"no creator", domain.CreateRoomInput{Name: "x"}, domain.ErrAuthenticationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRoom(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	room := create(t, svc, "u1", "  dedupe ", "u2", "u1", " u2 ", "")
	assert.Equal(t, "dedupe", room.Name)
	assert.Equal(t, []string{"u1", "u2"}, room.Participants)
	assert.Equal(t, 3, room.Settings.MaxParticipants)
}

func TestRoomService_Join(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{MaxParticipants: 2})
	ctx := context.Background()

	room := create(t, svc, "u1", "hikers")

	_, err := svc.Join(ctx, room.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Join(ctx, "missing", "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Join(ctx, room.ID, "u2")
	require.NoError(t, err)

	_, err = svc.Join(ctx, room.ID, "u3")
	assert.ErrorIs(t, err, domain.ErrConflict, "room is full")

	_, err = svc.Leave(ctx, room.ID, "u9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoomService_AdminOnlyMutations(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{})
	ctx := context.Background()

	room := create(t, svc, "u1", "admins", "u2")

	_, err := svc.AddParticipant(ctx, room.ID, "u2", "u3")
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	_, err = svc.RemoveParticipant(ctx, room.ID, "u2", "u1")
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)

	_, err = svc.AddParticipant(ctx, room.ID, "u1", "u2")
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := svc.GetRoom(ctx, "u1", room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Participants, "no duplicate entry")

	_, err = svc.RemoveParticipant(ctx, room.ID, "u1", "u9")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err = svc.RemoveParticipant(ctx, room.ID, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, got.Participants)
}

func TestRoomService_RemovingLastAdminIsAllowed(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{})
	ctx := context.Background()

	room := create(t, svc, "u1", "orphan", "u2")

	got, err := svc.RemoveParticipant(ctx, room.ID, "u1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, got.Participants)
	assert.Empty(t, got.Admins)
	assert.True(t, got.IsActive)

	_, err = svc.AddParticipant(ctx, room.ID, "u2", "u3")
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
}

func TestRoomService_InvitesDisabled(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{})
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, domain.CreateRoomInput{
		CreatorID: "u1",
		Name:      "closed",
		Settings:  &domain.RoomSettings{AllowInvites: false},
	})
	require.NoError(t, err)

	_, err = svc.AddParticipant(ctx, room.ID, "u1", "u2")
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
}

func TestRoomService_GetRoomVisibilityAndCache(t *testing.T) {
	svc, mr := setupService(t, RoomServiceConfig{})
	ctx := context.Background()

	private := create(t, svc, "u1", "private")
	_, err := svc.GetRoom(ctx, "u2", private.ID)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)

	got, err := svc.GetRoom(ctx, "u1", private.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Name)
	assert.True(t, mr.Exists("chat:room:id:"+private.ID))

	_, err = svc.Join(ctx, private.ID, "u2")
	require.NoError(t, err)
	assert.False(t, mr.Exists("chat:room:id:"+private.ID), "mutations invalidate the cache")

	ok, err := svc.IsParticipant(ctx, private.ID, "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.GetRoom(ctx, "u1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	public, err := svc.CreateRoom(ctx, domain.CreateRoomInput{CreatorID: "u1", Name: "open", Type: domain.RoomTypePublic})
	require.NoError(t, err)
	_, err = svc.GetRoom(ctx, "stranger", public.ID)
	assert.NoError(t, err)
}

func TestRoomService_ConcurrentJoinsAreNotLost(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{UpdateRetries: 100})
	ctx := context.Background()

	room := create(t, svc, "owner", "busy")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Join(ctx, room.ID, fmt.Sprintf("user-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.GetRoom(ctx, "owner", room.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, n+1)
	assert.Equal(t, int64(n+1), got.Version)
}

type conflictOnceRepo struct {
	repository.RoomRepository
	mu       sync.Mutex
	conflict bool
}

func (r *conflictOnceRepo) Update(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	if r.conflict {
		r.conflict = false
		r.mu.Unlock()
		return repository.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.RoomRepository.Update(ctx, room)
}

func TestRoomService_RetriesOnVersionConflict(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.AutoMigrate(&domain.RoomModel{}))

	repo := &conflictOnceRepo{RoomRepository: repository.NewGormRoomRepository(db), conflict: true}
	svc := NewRoomService(repo, nil, RoomServiceConfig{UpdateRetries: 2})
	ctx := context.Background()

	room := create(t, svc, "u1", "retry")
	got, err := svc.Join(ctx, room.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Participants)

	repo.conflict = true
	svc = NewRoomService(repo, nil, RoomServiceConfig{UpdateRetries: 1})
	_, err = svc.Join(ctx, room.ID, "u3")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRoomService_ParticipantsReflectRemovals(t *testing.T) {
	svc, _ := setupService(t, RoomServiceConfig{})
	ctx := context.Background()

	room := create(t, svc, "U1", "Ridge", "U2", "U3")
	members, err := svc.Participants(ctx, room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"U1", "U2", "U3"}, members)

	// Warm cache must not hide the removal.
	_, err = svc.RemoveParticipant(ctx, room.ID, "U1", "U2")
	require.NoError(t, err)
	members, err = svc.Participants(ctx, room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"U1", "U3"}, members)

	for _, u := range []string{"U1", "U3"} {
		_, err = svc.Leave(ctx, room.ID, u)
		require.NoError(t, err)
	}
	_, err = svc.Participants(ctx, room.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Participants(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
