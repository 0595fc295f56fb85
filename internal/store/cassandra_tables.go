package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/trailchat/internal/domain"
)

const selectMessage = `SELECT id, sender_id, sender_username, recipient_id, room_id, content, type,
	status, sent_at, delivered_at, read_at, expires_at FROM messages_by_id WHERE id = ?`

// cqlTables implements messageTables on a gocql session.
type cqlTables struct {
	session *gocql.Session
}

func (t *cqlTables) Insert(ctx context.Context, msg *domain.Message, ttl int) error {
	batch := t.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages_by_id (id, sender_id, sender_username, recipient_id, room_id,
		content, type, status, sent_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`,
		msg.ID, msg.SenderID, msg.SenderUsername, msg.RecipientID, msg.RoomID,
		msg.Content, string(msg.Type), string(msg.Status), msg.SentAt, msg.ExpiresAt, ttl)
	if msg.IsDirect() {
		batch.Query(`INSERT INTO pending_by_recipient (recipient_id, sent_at, id, sender_id, sender_username,
			content, type, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`,
			msg.RecipientID, msg.SentAt, msg.ID, msg.SenderID, msg.SenderUsername,
			msg.Content, string(msg.Type), msg.ExpiresAt, ttl)
	}
	return t.session.ExecuteBatch(batch)
}

func (t *cqlTables) Get(ctx context.Context, id string) (*domain.Message, error) {
	var (
		msg                 domain.Message
		msgType, status     string
		deliveredAt, readAt time.Time
	)
	err := t.session.Query(selectMessage, id).WithContext(ctx).Scan(
		&msg.ID, &msg.SenderID, &msg.SenderUsername, &msg.RecipientID, &msg.RoomID,
		&msg.Content, &msgType, &status, &msg.SentAt, &deliveredAt, &readAt, &msg.ExpiresAt,
	)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	msg.Type = domain.MessageType(msgType)
	msg.Status = domain.MessageStatus(status)
	if !deliveredAt.IsZero() {
		msg.DeliveredAt = &deliveredAt
	}
	if !readAt.IsZero() {
		msg.ReadAt = &readAt
	}
	return &msg, nil
}

func (t *cqlTables) UpdateStatus(ctx context.Context, msg *domain.Message, from domain.MessageStatus, ttl int) (bool, error) {
	q := t.session.Query(`UPDATE messages_by_id USING TTL ? SET status = ?, delivered_at = ? WHERE id = ? IF status = ?`,
		ttl, string(msg.Status), msg.DeliveredAt, msg.ID, string(from))
	if msg.ReadAt != nil {
		q = t.session.Query(`UPDATE messages_by_id USING TTL ? SET status = ?, delivered_at = ?, read_at = ? WHERE id = ? IF status = ?`,
			ttl, string(msg.Status), msg.DeliveredAt, msg.ReadAt, msg.ID, string(from))
	}
	return q.WithContext(ctx).MapScanCAS(map[string]any{})
}

func (t *cqlTables) Delete(ctx context.Context, id string, status domain.MessageStatus) (bool, error) {
	return t.session.Query(`DELETE FROM messages_by_id WHERE id = ? IF status = ?`, id, string(status)).
		WithContext(ctx).MapScanCAS(map[string]any{})
}

func (t *cqlTables) ListIndex(ctx context.Context, recipientID string, limit int) ([]*domain.Message, error) {
	iter := t.session.Query(`SELECT id, sent_at, sender_id, sender_username, content, type, expires_at
		FROM pending_by_recipient WHERE recipient_id = ? LIMIT ?`, recipientID, limit).
		WithContext(ctx).Iter()

	var (
		messages []*domain.Message
		id       string
		username string
		sender   string
		content  string
		msgType  string
		sentAt   time.Time
		expires  time.Time
	)
	for iter.Scan(&id, &sentAt, &sender, &username, &content, &msgType, &expires) {
		messages = append(messages, &domain.Message{
			ID:             id,
			SenderID:       sender,
			SenderUsername: username,
			RecipientID:    recipientID,
			Content:        content,
			Type:           domain.MessageType(msgType),
			SentAt:         sentAt.UTC(),
			ExpiresAt:      expires.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (t *cqlTables) DeleteIndex(ctx context.Context, msg *domain.Message) error {
	return t.session.Query(`DELETE FROM pending_by_recipient WHERE recipient_id = ? AND sent_at = ? AND id = ?`,
		msg.RecipientID, msg.SentAt, msg.ID).WithContext(ctx).Exec()
}

// ttlSeconds is the remaining lifetime at now, at least one second.
func ttlSeconds(expiresAt, now time.Time) int {
	ttl := int(expiresAt.Sub(now).Seconds())
	if ttl < 1 {
		return 1
	}
	return ttl
}
