package presence

import (
	"context"
	"time"
)

// Record is the shared view of one user's presence.
type Record struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	InstanceID string    `json:"instanceId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store is the presence cache shared by every instance.
type Store interface {
	// Get returns the record for userID, or nil if there is none.
	Get(ctx context.Context, userID string) (*Record, error)
	// Set writes rec and expires it after ttl unless refreshed.
	Set(ctx context.Context, rec Record, ttl time.Duration) error
	// Delete removes the record only if instanceID still owns it.
	Delete(ctx context.Context, userID, instanceID string) error
}
