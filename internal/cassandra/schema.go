package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Both tables expire rows through default_time_to_live; writes also carry an
// explicit TTL so a shorter configured retention takes effect immediately.
const messagesByIDTable = `CREATE TABLE IF NOT EXISTS messages_by_id (
	id text PRIMARY KEY,
	sender_id text,
	sender_username text,
	recipient_id text,
	room_id text,
	content text,
	type text,
	status text,
	sent_at timestamp,
	delivered_at timestamp,
	read_at timestamp,
	expires_at timestamp
) WITH default_time_to_live = %d`

const pendingByRecipientTable = `CREATE TABLE IF NOT EXISTS pending_by_recipient (
	recipient_id text,
	sent_at timestamp,
	id text,
	sender_id text,
	sender_username text,
	content text,
	type text,
	expires_at timestamp,
	PRIMARY KEY ((recipient_id), sent_at, id)
) WITH CLUSTERING ORDER BY (sent_at ASC, id ASC) AND default_time_to_live = %d`

// EnsureSchema creates the message tables if they do not exist.
func EnsureSchema(session *gocql.Session, retention time.Duration) error {
	ttl := int(retention.Seconds())
	for _, stmt := range []string{messagesByIDTable, pendingByRecipientTable} {
		if err := session.Query(fmt.Sprintf(stmt, ttl)).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
