package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/pkg/log"
)

// GormMessageStore keeps messages in a SQL database. Expiry is enforced on
// every read and rows are purged by a Sweeper calling DeleteExpired.
type GormMessageStore struct {
	db   *gorm.DB
	opts options
}

// NewGormMessageStore creates a new GORM-backed message store.
func NewGormMessageStore(db *gorm.DB, opts ...Option) *GormMessageStore {
	return &GormMessageStore{db: db, opts: buildOptions(opts)}
}

func (s *GormMessageStore) now() time.Time {
	return s.opts.now().UTC()
}

func (s *GormMessageStore) Create(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	msg, err := newMessage(in, s.now(), s.opts.retention)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(domain.MessageToModel(msg)).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to create message")
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (s *GormMessageStore) MarkDelivered(ctx context.Context, id, recipientID string) error {
	now := s.now()
	result := s.live(ctx, now).
		Model(&domain.MessageModel{}).
		Where("id = ? AND recipient_id = ? AND status = ?", id, recipientID, domain.MessageStatusPending).
		Updates(map[string]any{
			"status":       domain.MessageStatusDelivered,
			"delivered_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message delivered: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return s.alreadyAt(ctx, id, recipientID, now, domain.MessageStatusDelivered)
}

func (s *GormMessageStore) MarkRead(ctx context.Context, id, recipientID string) error {
	now := s.now()
	result := s.live(ctx, now).
		Model(&domain.MessageModel{}).
		Where("id = ? AND recipient_id = ? AND status IN ?", id, recipientID,
			[]domain.MessageStatus{domain.MessageStatusPending, domain.MessageStatusDelivered}).
		Updates(map[string]any{
			"status":       domain.MessageStatusRead,
			"read_at":      now,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message read: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return s.alreadyAt(ctx, id, recipientID, now, domain.MessageStatusRead)
}

// alreadyAt resolves a transition that matched no row: nil when the message
// exists and has already reached target, NotFound otherwise.
func (s *GormMessageStore) alreadyAt(ctx context.Context, id, recipientID string, now time.Time, target domain.MessageStatus) error {
	var model domain.MessageModel
	err := s.live(ctx, now).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if domain.MessageStatus(model.Status).Rank() >= target.Rank() {
		return nil
	}
	return fmt.Errorf("%w: message %s is %s", domain.ErrNotFound, id, model.Status)
}

func (s *GormMessageStore) ListPending(ctx context.Context, recipientID string, limit int) ([]*domain.Message, error) {
	var models []domain.MessageModel
	err := s.live(ctx, s.now()).
		Where("recipient_id = ? AND status = ?", recipientID, domain.MessageStatusPending).
		Order("sent_at ASC, id ASC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	messages := make([]*domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, nil
}

func (s *GormMessageStore) Cleanup(ctx context.Context, id, recipientID string) error {
	result := s.live(ctx, s.now()).
		Where("id = ? AND recipient_id = ? AND status IN ?", id, recipientID,
			[]domain.MessageStatus{domain.MessageStatusDelivered, domain.MessageStatusRead}).
		Delete(&domain.MessageModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to clean up message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: no delivered message %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeleteExpired purges every message whose expiry is at or before now.
func (s *GormMessageStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.MessageModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// live scopes a query to messages that have not expired yet.
func (s *GormMessageStore) live(ctx context.Context, now time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Where("expires_at > ?", now)
}
