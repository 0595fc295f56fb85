package store

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/pkg/log"
)

// messageTables is the Cassandra access the store is built on: message rows
// keyed by id and the per-recipient pending index.
type messageTables interface {
	// Insert writes msg and, for direct messages, its index row.
	Insert(ctx context.Context, msg *domain.Message, ttl int) error
	// Get returns nil when the row does not exist.
	Get(ctx context.Context, id string) (*domain.Message, error)
	// UpdateStatus writes msg's status and timestamps if the stored status
	// is still from.
	UpdateStatus(ctx context.Context, msg *domain.Message, from domain.MessageStatus, ttl int) (bool, error)
	// Delete removes the row if its status is still status.
	Delete(ctx context.Context, id string, status domain.MessageStatus) (bool, error)
	// ListIndex returns the recipient's index rows, oldest first.
	ListIndex(ctx context.Context, recipientID string, limit int) ([]*domain.Message, error)
	// DeleteIndex removes msg's index row. Removing a missing row succeeds.
	DeleteIndex(ctx context.Context, msg *domain.Message) error
}

// CassandraMessageStore keeps messages in Cassandra and relies on its native
// TTL for expiry. Direct messages are also indexed in pending_by_recipient
// until they leave the pending state.
type CassandraMessageStore struct {
	tables messageTables
	opts   options
}

// NewCassandraMessageStore creates a Cassandra-backed message store.
func NewCassandraMessageStore(session *gocql.Session, opts ...Option) *CassandraMessageStore {
	return newCassandraMessageStore(&cqlTables{session: session}, opts...)
}

func newCassandraMessageStore(tables messageTables, opts ...Option) *CassandraMessageStore {
	return &CassandraMessageStore{tables: tables, opts: buildOptions(opts)}
}

func (s *CassandraMessageStore) Create(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	msg, err := newMessage(in, s.opts.now(), s.opts.retention)
	if err != nil {
		return nil, err
	}

	if err := s.tables.Insert(ctx, msg, ttlSeconds(msg.ExpiresAt, msg.SentAt)); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to save message")
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// MarkDelivered drops the index row whenever the message is past pending,
// so an earlier failed index removal is repaired by the next attempt.
func (s *CassandraMessageStore) MarkDelivered(ctx context.Context, id, recipientID string) error {
	msg, err := s.addressed(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if msg.Status == domain.MessageStatusPending {
		now := s.opts.now().UTC()
		next := *msg
		next.Status = domain.MessageStatusDelivered
		next.DeliveredAt = &now
		// Not applied means another transition won; it is at least delivered.
		if _, err := s.tables.UpdateStatus(ctx, &next, msg.Status, ttlSeconds(msg.ExpiresAt, now)); err != nil {
			return fmt.Errorf("failed to mark message delivered: %w", err)
		}
	}
	return s.unindex(ctx, msg)
}

func (s *CassandraMessageStore) MarkRead(ctx context.Context, id, recipientID string) error {
	msg, err := s.addressed(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if msg.Status == domain.MessageStatusRead {
		return s.unindex(ctx, msg)
	}

	now := s.opts.now().UTC()
	next := *msg
	next.Status = domain.MessageStatusRead
	next.ReadAt = &now
	if next.DeliveredAt == nil {
		next.DeliveredAt = &now
	}
	applied, err := s.tables.UpdateStatus(ctx, &next, msg.Status, ttlSeconds(msg.ExpiresAt, now))
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if !applied {
		// Concurrent transition; retry against the fresh state.
		return s.MarkRead(ctx, id, recipientID)
	}
	return s.unindex(ctx, msg)
}

func (s *CassandraMessageStore) ListPending(ctx context.Context, recipientID string, limit int) ([]*domain.Message, error) {
	rows, err := s.tables.ListIndex(ctx, recipientID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	now := s.opts.now()
	messages := make([]*domain.Message, 0, len(rows))
	for _, msg := range rows {
		if !msg.ExpiresAt.After(now) {
			continue
		}
		msg.Status = domain.MessageStatusPending
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *CassandraMessageStore) Cleanup(ctx context.Context, id, recipientID string) error {
	msg, err := s.addressed(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if msg.Status == domain.MessageStatusPending {
		return fmt.Errorf("%w: message %s is pending", domain.ErrNotFound, id)
	}

	applied, err := s.tables.Delete(ctx, id, msg.Status)
	if err != nil {
		return fmt.Errorf("failed to clean up message: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: message %s changed concurrently", domain.ErrNotFound, id)
	}
	return nil
}

// addressed loads a live message addressed to recipientID.
func (s *CassandraMessageStore) addressed(ctx context.Context, id, recipientID string) (*domain.Message, error) {
	msg, err := s.tables.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil || msg.RecipientID != recipientID || !msg.ExpiresAt.After(s.opts.now()) {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	return msg, nil
}

func (s *CassandraMessageStore) unindex(ctx context.Context, msg *domain.Message) error {
	if !msg.IsDirect() {
		return nil
	}
	if err := s.tables.DeleteIndex(ctx, msg); err != nil {
		return fmt.Errorf("failed to remove pending index: %w", err)
	}
	return nil
}
