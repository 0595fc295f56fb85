package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create creates a new room.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	if room.Version == 0 {
		room.Version = 1
	}
	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to create room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt.UTC()
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetByID retrieves a room by ID, active or not.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	l := log.Ctx(ctx)

	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListActiveByParticipant returns active rooms that include userID, most
// recently active first.
func (r *GormRoomRepository) ListActiveByParticipant(ctx context.Context, userID string) ([]domain.Room, error) {
	l := log.Ctx(ctx)

	// Participants are stored as JSON text; LIKE narrows the scan and the
	// exact membership check below removes false positives.
	var models []domain.RoomModel
	result := r.db.WithContext(ctx).
		Where("is_active = ? AND participants LIKE ?", true, `%"`+userID+`"%`).
		Order("last_activity DESC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to list user rooms from db")
		return nil, result.Error
	}

	rooms := make([]domain.Room, 0, len(models))
	for i := range models {
		if models[i].Participants.Contains(userID) {
			rooms = append(rooms, *models[i].ToDomain())
		}
	}
	return rooms, nil
}

// Update writes the mutable room fields guarded by the version read.
func (r *GormRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	result := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("id = ? AND version = ?", room.ID, room.Version).
		Updates(map[string]any{
			"participants":  model.Participants,
			"admins":        model.Admins,
			"is_active":     model.IsActive,
			"last_activity": model.LastActivity,
			"version":       room.Version + 1,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, room.ID).Msg("failed to update room in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	room.Version++
	return nil
}
