package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/trailchat/internal/audit"
	"github.com/weiawesome/trailchat/internal/cache"
	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/internal/repository"
	"github.com/weiawesome/trailchat/pkg/log"
)

// RoomServiceConfig tunes the room registry.
type RoomServiceConfig struct {
	MaxParticipants int
	UpdateRetries   int
	CacheTTL        time.Duration
}

// roomServiceImpl implements RoomService.
type roomServiceImpl struct {
	repo  repository.RoomRepository
	cache cache.RoomCache
	sf    singleflight.Group
	cfg   RoomServiceConfig
	now   func() time.Time
}

// NewRoomService creates a new room service. roomCache may be nil.
func NewRoomService(repo repository.RoomRepository, roomCache cache.RoomCache, cfg RoomServiceConfig) RoomService {
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = domain.DefaultMaxParticipants
	}
	if cfg.UpdateRetries <= 0 {
		cfg.UpdateRetries = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &roomServiceImpl{
		repo:  repo,
		cache: roomCache,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom creates an active room with the creator as its first
// participant and only admin.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, in domain.CreateRoomInput) (*domain.Room, error) {
	if in.CreatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", domain.ErrAuthenticationRequired)
	}
	name, err := domain.ValidateRoomName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = domain.RoomTypeGroup
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown room type %q", domain.ErrValidation, in.Type)
	}

	settings := domain.DefaultRoomSettings()
	settings.MaxParticipants = s.cfg.MaxParticipants
	if in.Settings != nil {
		settings.AllowInvites = in.Settings.AllowInvites
		if in.Settings.MaxParticipants > 0 {
			settings.MaxParticipants = min(in.Settings.MaxParticipants, s.cfg.MaxParticipants)
		}
	}

	participants := []string{in.CreatorID}
	for _, id := range in.Participants {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}
	if len(participants) > settings.MaxParticipants {
		return nil, fmt.Errorf("%w: room allows at most %d participants", domain.ErrValidation, settings.MaxParticipants)
	}

	now := s.now()
	room := &domain.Room{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         in.Type,
		Participants: participants,
		Admins:       []string{in.CreatorID},
		CreatedBy:    in.CreatorID,
		IsActive:     true,
		Settings:     settings,
		LastActivity: now,
		CreatedAt:    now,
		Version:      1,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	audit.LogTarget(ctx, audit.ActionRoomCreate, in.CreatorID, room.ID, "room created")
	return room, nil
}

func (s *roomServiceImpl) GetRoom(ctx context.Context, callerID, roomID string) (*domain.Room, error) {
	room, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Type != domain.RoomTypePublic && !room.HasParticipant(callerID) {
		return nil, fmt.Errorf("%w: not a participant of room %s", domain.ErrAuthorizationDenied, roomID)
	}
	return room, nil
}

func (s *roomServiceImpl) ListUserRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	rooms, err := s.repo.ListActiveByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (s *roomServiceImpl) Join(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	room, err := s.mutate(ctx, roomID, func(room *domain.Room) error {
		if room.HasParticipant(userID) {
			return fmt.Errorf("%w: already a participant", domain.ErrConflict)
		}
		if room.IsFull() {
			return fmt.Errorf("%w: room is full", domain.ErrConflict)
		}
		room.Participants = append(room.Participants, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionRoomJoin, userID, roomID, "joined room")
	return room, nil
}

func (s *roomServiceImpl) Leave(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	room, err := s.mutate(ctx, roomID, func(room *domain.Room) error {
		if !room.RemoveMember(userID) {
			return fmt.Errorf("%w: not a participant", domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionRoomLeave, userID, roomID, "left room")
	s.logDeactivation(ctx, room, userID)
	return room, nil
}

func (s *roomServiceImpl) AddParticipant(ctx context.Context, roomID, callerID, targetID string) (*domain.Room, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	room, err := s.mutate(ctx, roomID, func(room *domain.Room) error {
		if !room.IsAdmin(callerID) {
			return fmt.Errorf("%w: only admins can add participants", domain.ErrAuthorizationDenied)
		}
		if !room.Settings.AllowInvites {
			return fmt.Errorf("%w: invites are disabled for this room", domain.ErrAuthorizationDenied)
		}
		if room.HasParticipant(targetID) {
			return fmt.Errorf("%w: user is already a participant", domain.ErrConflict)
		}
		if room.IsFull() {
			return fmt.Errorf("%w: room is full", domain.ErrConflict)
		}
		room.Participants = append(room.Participants, targetID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionRoomAddMember, callerID, targetID, "participant added to "+roomID)
	return room, nil
}

// RemoveParticipant lets an admin remove anyone, including the last admin.
func (s *roomServiceImpl) RemoveParticipant(ctx context.Context, roomID, callerID, targetID string) (*domain.Room, error) {
	room, err := s.mutate(ctx, roomID, func(room *domain.Room) error {
		if !room.IsAdmin(callerID) {
			return fmt.Errorf("%w: only admins can remove participants", domain.ErrAuthorizationDenied)
		}
		if !room.RemoveMember(targetID) {
			return fmt.Errorf("%w: user is not a participant", domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionRoomRemoveMember, callerID, targetID, "participant removed from "+roomID)
	s.logDeactivation(ctx, room, callerID)
	return room, nil
}

func (s *roomServiceImpl) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := s.load(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsActive {
		return false, fmt.Errorf("%w: room %s is inactive", domain.ErrNotFound, roomID)
	}
	return room.HasParticipant(userID), nil
}

func (s *roomServiceImpl) Participants(ctx context.Context, roomID string) ([]string, error) {
	room, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%w: room %s is inactive", domain.ErrNotFound, roomID)
	}
	return slices.Clone(room.Participants), nil
}

// mutate applies fn to a fresh copy of an active room and stores it with a
// versioned conditional update, re-reading and retrying when another writer
// got there first. fn must not have side effects beyond the room it is given.
func (s *roomServiceImpl) mutate(ctx context.Context, roomID string, fn func(*domain.Room) error) (*domain.Room, error) {
	l := log.Ctx(ctx)

	for attempt := 1; attempt <= s.cfg.UpdateRetries; attempt++ {
		room, err := s.repo.GetByID(ctx, roomID)
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, fmt.Errorf("%w: room %s", domain.ErrNotFound, roomID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load room: %w", err)
		}
		if !room.IsActive {
			return nil, fmt.Errorf("%w: room %s is inactive", domain.ErrNotFound, roomID)
		}

		if err := fn(room); err != nil {
			return nil, err
		}
		room.LastActivity = s.now()

		err = s.repo.Update(ctx, room)
		if errors.Is(err, repository.ErrVersionConflict) {
			l.Debug().Str(log.FieldRoomID, roomID).Int("attempt", attempt).Msg("room changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update room: %w", err)
		}

		s.invalidate(ctx, roomID)
		return room, nil
	}
	return nil, fmt.Errorf("%w: room %s is being modified concurrently", domain.ErrConflict, roomID)
}

// load reads a room through the cache. Concurrent misses for the same room
// share one database read.
func (s *roomServiceImpl) load(ctx context.Context, roomID string) (*domain.Room, error) {
	l := log.Ctx(ctx)

	if s.cache != nil {
		room, err := s.cache.Get(ctx, roomID)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room cache read failed")
		}
	}

	v, err, _ := s.sf.Do(roomID, func() (any, error) {
		room, err := s.repo.GetByID(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, room, s.cfg.CacheTTL); err != nil {
				l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room cache write failed")
			}
		}
		return room, nil
	})
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, fmt.Errorf("%w: room %s", domain.ErrNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	room := *v.(*domain.Room)
	room.Participants = slices.Clone(room.Participants)
	room.Admins = slices.Clone(room.Admins)
	return &room, nil
}

func (s *roomServiceImpl) invalidate(ctx context.Context, roomID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, roomID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room cache invalidation failed")
	}
}

func (s *roomServiceImpl) logDeactivation(ctx context.Context, room *domain.Room, actorID string) {
	if !room.IsActive {
		audit.LogTarget(ctx, audit.ActionRoomDeactivate, actorID, room.ID, "room deactivated, no participants left")
	}
}
