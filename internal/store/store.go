package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/trailchat/internal/domain"
)

const (
	DefaultPendingLimit = 50
	MaxPendingLimit     = 100
)

// MessageStore is the durable record of messages and their delivery status.
// Expired messages are invisible to every operation.
type MessageStore interface {
	// Create persists a pending message.
	Create(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	// MarkDelivered moves a message addressed to recipientID from pending to
	// delivered. Already delivered or read messages are left untouched.
	MarkDelivered(ctx context.Context, id, recipientID string) error
	// MarkRead moves a message addressed to recipientID to read.
	MarkRead(ctx context.Context, id, recipientID string) error
	// ListPending returns the recipient's pending backlog, oldest first.
	ListPending(ctx context.Context, recipientID string, limit int) ([]*domain.Message, error)
	// Cleanup deletes a message addressed to recipientID once it has been delivered.
	Cleanup(ctx context.Context, id, recipientID string) error
}

// Option configures a store.
type Option func(*options)

type options struct {
	retention time.Duration
	now       func() time.Time
}

// WithRetention overrides how long messages live.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{retention: domain.DefaultRetention, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newMessage validates in and builds the pending message stamped at now.
func newMessage(in domain.NewMessage, now time.Time, retention time.Duration) (*domain.Message, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &domain.Message{
		ID:             id.String(),
		SenderID:       in.SenderID,
		SenderUsername: in.SenderUsername,
		RecipientID:    in.RecipientID,
		RoomID:         in.RoomID,
		Content:        in.Content,
		Type:           in.Type,
		Status:         domain.MessageStatusPending,
		SentAt:         now,
		ExpiresAt:      now.Add(retention),
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPendingLimit
	}
	if limit > MaxPendingLimit {
		return MaxPendingLimit
	}
	return limit
}
