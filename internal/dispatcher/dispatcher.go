package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weiawesome/trailchat/internal/audit"
	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/internal/store"
	"github.com/weiawesome/trailchat/pkg/log"
	"github.com/weiawesome/trailchat/pkg/pubsub"
)

// Pusher writes an encoded event to live sockets on this instance. Both
// methods return how many sockets accepted the frame.
type Pusher interface {
	PushToUser(userID string, data []byte) int
	PushToRoom(roomID string, members []string, data []byte) int
}

// Presence answers whether a user is connected to this instance.
type Presence interface {
	IsOnlineLocally(userID string) bool
}

// Membership gates room sends and room pushes.
type Membership interface {
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	Participants(ctx context.Context, roomID string) ([]string, error)
}

// Config holds dispatcher configuration.
type Config struct {
	InstanceID   string
	Workers      int
	QueueSize    int
	PendingBatch int
}

// SendRequest is a message a user asked to send.
type SendRequest struct {
	SenderID       string
	SenderUsername string
	RecipientID    string
	RoomID         string
	Content        string
	Type           domain.MessageType
}

// Dispatcher persists messages and gets them to the recipient's socket,
// directly when the recipient is connected here and through the delivery
// channel otherwise. Delivery is at-least-once; clients dedupe by id.
type Dispatcher struct {
	store    store.MessageStore
	rooms    Membership
	presence Presence
	pusher   Pusher
	bus      pubsub.Publisher
	cfg      Config

	queue chan *domain.Message
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// New creates a dispatcher. bus may be nil, in which case only local
// pushes happen.
func New(ms store.MessageStore, rooms Membership, presence Presence, pusher Pusher, bus pubsub.Publisher, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PendingBatch <= 0 {
		cfg.PendingBatch = store.MaxPendingLimit
	}
	return &Dispatcher{
		store:    ms,
		rooms:    rooms,
		presence: presence,
		pusher:   pusher,
		bus:      bus,
		cfg:      cfg,
		queue:    make(chan *domain.Message, cfg.QueueSize),
	}
}

// Start launches the delivery workers. ctx carries the logger used for
// background deliveries.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	ctx = context.WithoutCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop drains queued deliveries and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Send persists the message as pending and returns it. Delivery happens in
// the background and its outcome never fails the send.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if req.RoomID != "" && req.RecipientID == "" {
		ok, err := d.rooms.IsParticipant(ctx, req.RoomID, req.SenderID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: not a participant of room %s", domain.ErrAuthorizationDenied, req.RoomID)
		}
	}

	msg, err := d.store.Create(ctx, domain.NewMessage{
		SenderID:       req.SenderID,
		SenderUsername: req.SenderUsername,
		RecipientID:    req.RecipientID,
		RoomID:         req.RoomID,
		Content:        req.Content,
		Type:           req.Type,
	})
	if err != nil {
		return nil, err
	}

	audit.LogTarget(ctx, audit.ActionSendMessage, req.SenderID, msg.ID, "message sent")
	d.enqueue(ctx, msg)
	return msg, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, msg *domain.Message) {
	l := log.Ctx(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		l.Warn().Str(log.FieldMessageID, msg.ID).Msg("dispatcher stopped, message left pending")
		return
	}

	select {
	case d.queue <- msg:
	default:
		l.Warn().Str(log.FieldMessageID, msg.ID).Msg("delivery queue full, message left pending")
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(ctx, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg *domain.Message) {
	l := log.Ctx(ctx)

	data, err := json.Marshal(domain.NewMessageEventFrom(msg))
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to encode message")
		return
	}

	if msg.IsDirect() {
		if d.presence.IsOnlineLocally(msg.RecipientID) && d.pushDirect(ctx, msg.ID, msg.RecipientID, data) {
			return
		}
		d.publish(ctx, pubsub.EventDeliverDirect, msg.RecipientID, pubsub.DeliveryPayload{
			MessageID:   msg.ID,
			RecipientID: msg.RecipientID,
			SenderID:    msg.SenderID,
			Message:     data,
		})
		return
	}

	d.pushRoom(ctx, msg.RoomID, data)
	d.publish(ctx, pubsub.EventDeliverRoom, msg.RoomID, pubsub.DeliveryPayload{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Message:   data,
	})
}

// pushDirect pushes to the recipient's local sockets and records the
// delivery. It reports whether the message is now delivered.
func (d *Dispatcher) pushDirect(ctx context.Context, messageID, recipientID string, data []byte) bool {
	l := log.Ctx(ctx)

	if d.pusher.PushToUser(recipientID, data) == 0 {
		l.Debug().Str(log.FieldMessageID, messageID).Str(log.FieldUserID, recipientID).Msg("push failed, message left pending")
		return false
	}
	if err := d.store.MarkDelivered(ctx, messageID, recipientID); err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to mark message delivered")
		return false
	}
	return true
}

// pushRoom pushes to the local sockets of the room's current participants.
// Without a membership answer nothing is pushed.
func (d *Dispatcher) pushRoom(ctx context.Context, roomID string, data []byte) {
	l := log.Ctx(ctx)

	members, err := d.rooms.Participants(ctx, roomID)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room membership unavailable, room push skipped")
		return
	}
	d.pusher.PushToRoom(roomID, members, data)
}

func (d *Dispatcher) publish(ctx context.Context, eventType, key string, payload pubsub.DeliveryPayload) {
	if d.bus == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, key, d.cfg.InstanceID, payload)
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, payload.MessageID).Msg("failed to build delivery intent")
		return
	}
	if err := d.bus.Publish(ctx, pubsub.ChannelDelivery, event); err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, payload.MessageID).Msg("delivery intent not published, message left pending")
	}
}

// HandleIntent pushes a delivery intent published by another instance to
// the matching local sockets.
func (d *Dispatcher) HandleIntent(ctx context.Context, event *pubsub.Event) {
	if event.Origin == d.cfg.InstanceID {
		return
	}
	l := log.Ctx(ctx)

	var p pubsub.DeliveryPayload
	if err := event.UnmarshalPayload(&p); err != nil {
		l.Warn().Err(err).Str(log.FieldEvent, event.Type).Msg("malformed delivery intent")
		return
	}

	switch event.Type {
	case pubsub.EventDeliverDirect:
		if d.presence.IsOnlineLocally(p.RecipientID) {
			d.pushDirect(ctx, p.MessageID, p.RecipientID, p.Message)
		}
	case pubsub.EventDeliverRoom:
		d.pushRoom(ctx, p.RoomID, p.Message)
	default:
		l.Debug().Str(log.FieldEvent, event.Type).Msg("ignoring unknown delivery intent")
	}
}

// Run consumes delivery intents until ctx is cancelled. Without a broker
// the instance keeps delivering to its own sockets only.
func (d *Dispatcher) Run(ctx context.Context, sub pubsub.Subscriber) {
	l := log.Ctx(ctx)

	events, err := sub.Subscribe(ctx, pubsub.ChannelDelivery)
	if err != nil {
		l.Warn().Err(err).Msg("delivery subscription unavailable, local delivery only")
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.HandleIntent(ctx, event)
		}
	}
}

// OnPresenceOnline replays userID's pending backlog oldest first. It stops
// at the first push that does not go through; the rest stays pending until
// the next time the user comes online.
func (d *Dispatcher) OnPresenceOnline(ctx context.Context, userID string) {
	l := log.Ctx(ctx)

	delivered := make(map[string]struct{})
	for {
		msgs, err := d.store.ListPending(ctx, userID, d.cfg.PendingBatch)
		if err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to load pending backlog")
			return
		}

		for _, msg := range msgs {
			if _, ok := delivered[msg.ID]; ok {
				// Marked delivered yet still listed; leave it for the next replay.
				l.Warn().Str(log.FieldMessageID, msg.ID).Str(log.FieldUserID, userID).Msg("pending backlog did not advance")
				return
			}
			data, err := json.Marshal(domain.NewMessageEventFrom(msg))
			if err != nil {
				l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to encode message")
				return
			}
			if !d.pushDirect(ctx, msg.ID, userID, data) {
				return
			}
			delivered[msg.ID] = struct{}{}
		}

		if len(msgs) < d.cfg.PendingBatch {
			break
		}
	}

	if len(delivered) > 0 {
		l.Debug().Str(log.FieldUserID, userID).Int("count", len(delivered)).Msg("pending backlog delivered")
	}
}
