package presence

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/trailchat/pkg/log"
	"github.com/weiawesome/trailchat/pkg/pubsub"
)

// OnlineListener is called after a user comes online on this instance.
type OnlineListener func(ctx context.Context, userID string)

// Config holds tracker configuration.
type Config struct {
	InstanceID        string
	TTL               time.Duration
	HeartbeatInterval time.Duration
}

// Tracker keeps the set of users connected to this instance and a view of
// users connected elsewhere, learned from the presence channel. The view is
// eventually consistent; the message store stays the source of truth for
// delivery.
type Tracker struct {
	store Store
	bus   pubsub.PubSub
	cfg   Config
	now   func() time.Time

	mu        sync.RWMutex
	local     map[string]struct{}
	remote    map[string]Record
	listeners []OnlineListener
}

// NewTracker creates a tracker. store may be nil when no shared cache is
// configured, in which case only the broadcast view is kept.
func NewTracker(store Store, bus pubsub.PubSub, cfg Config) *Tracker {
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatInterval >= cfg.TTL {
		cfg.HeartbeatInterval = cfg.TTL / 3
	}
	return &Tracker{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		local:  make(map[string]struct{}),
		remote: make(map[string]Record),
	}
}

// OnOnline registers fn to run on every SetOnline. Register before serving.
func (t *Tracker) OnOnline(fn OnlineListener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// SetOnline records userID as connected here, announces it and runs the
// online listeners. Shared cache and broker failures are logged only.
func (t *Tracker) SetOnline(ctx context.Context, userID string) {
	l := log.Ctx(ctx)

	t.mu.Lock()
	t.local[userID] = struct{}{}
	delete(t.remote, userID)
	listeners := append([]OnlineListener(nil), t.listeners...)
	t.mu.Unlock()

	rec := t.localRecord(userID)
	if t.store != nil {
		if err := t.store.Set(ctx, rec, t.cfg.TTL); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to write shared presence")
		}
	}
	t.announce(ctx, pubsub.EventUserOnline, rec)

	for _, fn := range listeners {
		fn(ctx, userID)
	}
}

// SetOffline drops the local binding for userID and announces it.
func (t *Tracker) SetOffline(ctx context.Context, userID string) {
	l := log.Ctx(ctx)

	t.mu.Lock()
	delete(t.local, userID)
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Delete(ctx, userID, t.cfg.InstanceID); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to clear shared presence")
		}
	}
	t.announce(ctx, pubsub.EventUserOffline, Record{
		UserID:     userID,
		InstanceID: t.cfg.InstanceID,
		UpdatedAt:  t.now(),
	})
}

// IsOnlineLocally reports whether this instance holds a connection for userID.
func (t *Tracker) IsOnlineLocally(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.local[userID]
	return ok
}

// Lookup returns the best known presence of userID across instances.
func (t *Tracker) Lookup(ctx context.Context, userID string) (Record, error) {
	if t.IsOnlineLocally(userID) {
		return t.localRecord(userID), nil
	}

	t.mu.RLock()
	rec, ok := t.remote[userID]
	t.mu.RUnlock()
	if ok {
		return rec, nil
	}

	if t.store != nil {
		shared, err := t.store.Get(ctx, userID)
		if err != nil {
			return Record{}, err
		}
		if shared != nil {
			return *shared, nil
		}
	}
	return Record{UserID: userID}, nil
}

// Run applies other instances' presence broadcasts and refreshes the shared
// records of local users until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	l := log.Ctx(ctx)

	var events <-chan *pubsub.Event
	if t.bus != nil {
		ch, err := t.bus.Subscribe(ctx, pubsub.ChannelPresence)
		if err != nil {
			l.Warn().Err(err).Msg("presence subscription unavailable, using local view only")
		} else {
			events = ch
		}
	}

	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.apply(ctx, event)
		case <-ticker.C:
			t.heartbeat(ctx)
		}
	}
}

func (t *Tracker) apply(ctx context.Context, event *pubsub.Event) {
	if event.Origin == t.cfg.InstanceID {
		return
	}

	var p pubsub.PresencePayload
	if err := event.UnmarshalPayload(&p); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldEvent, event.Type).Msg("malformed presence event")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Type {
	case pubsub.EventUserOnline:
		t.remote[p.UserID] = Record{UserID: p.UserID, Online: true, InstanceID: p.InstanceID, UpdatedAt: p.At}
	case pubsub.EventUserOffline:
		if cur, ok := t.remote[p.UserID]; ok && cur.InstanceID == p.InstanceID {
			delete(t.remote, p.UserID)
		}
	}
}

func (t *Tracker) heartbeat(ctx context.Context) {
	if t.store == nil {
		return
	}

	t.mu.RLock()
	users := make([]string, 0, len(t.local))
	for id := range t.local {
		users = append(users, id)
	}
	t.mu.RUnlock()

	l := log.Ctx(ctx)
	for _, id := range users {
		if err := t.store.Set(ctx, t.localRecord(id), t.cfg.TTL); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, id).Msg("presence heartbeat failed")
			return
		}
	}
}

func (t *Tracker) localRecord(userID string) Record {
	return Record{UserID: userID, Online: true, InstanceID: t.cfg.InstanceID, UpdatedAt: t.now()}
}

func (t *Tracker) announce(ctx context.Context, eventType string, rec Record) {
	if t.bus == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, rec.UserID, t.cfg.InstanceID, pubsub.PresencePayload{
		UserID:     rec.UserID,
		Online:     rec.Online,
		InstanceID: rec.InstanceID,
		At:         rec.UpdatedAt,
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to build presence event")
		return
	}
	if err := t.bus.Publish(ctx, pubsub.ChannelPresence, event); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, rec.UserID).Str(log.FieldEvent, eventType).Msg("presence broadcast failed")
	}
}
