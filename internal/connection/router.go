package connection

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/pkg/log"
)

// State is what the server knows about one socket.
type State struct {
	SocketID string
	UserID   string
	Username string
	Rooms    []string
}

// InRoom reports whether the socket is subscribed to roomID.
func (s State) InRoom(roomID string) bool {
	return slices.Contains(s.Rooms, roomID)
}

// Handler processes one inbound event. It returns the socket's next state
// and the events to send back to it. On error the state is left as it was.
type Handler func(ctx context.Context, st State, payload json.RawMessage) (State, []any, error)

// Router maps event names to handlers.
type Router struct {
	handlers map[string]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers h for event.
func (r *Router) Handle(event string, h Handler) {
	r.handlers[event] = h
}

// Dispatch decodes frame and runs its handler. Failures become an error
// event for the client; the connection stays usable.
func (r *Router) Dispatch(ctx context.Context, st State, frame []byte) (State, []any) {
	var base domain.BaseEvent
	if err := json.Unmarshal(frame, &base); err != nil {
		return st, []any{domain.NewErrorEvent(domain.ErrCodeValidation, "invalid message format")}
	}

	h, ok := r.handlers[base.Type]
	if !ok {
		return st, []any{domain.NewErrorEvent(domain.ErrCodeUnknownEvent, "unknown event: "+base.Type)}
	}

	next, out, err := h(ctx, st, frame)
	if err != nil {
		code := domain.ErrorCode(err)
		if code == domain.ErrCodeInternal {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldEvent, base.Type).Msg("event handler failed")
			return st, []any{domain.NewErrorEvent(code, "internal error")}
		}
		return st, []any{domain.NewErrorEvent(code, err.Error())}
	}
	return next, out
}
