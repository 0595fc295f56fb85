package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/trailchat/internal/config"
	"github.com/weiawesome/trailchat/internal/dispatcher"
	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/internal/hub"
)

type presenceCall struct {
	online bool
	userID string
}

type fakePresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (p *fakePresence) SetOnline(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{true, userID})
}

func (p *fakePresence) SetOffline(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{false, userID})
}

type fakeRooms map[string][]string

func (r fakeRooms) IsParticipant(_ context.Context, roomID, userID string) (bool, error) {
	members, ok := r[roomID]
	if !ok {
		return false, fmt.Errorf("%w: room %s", domain.ErrNotFound, roomID)
	}
	return slices.Contains(members, userID), nil
}

type fakeSender struct {
	mu   sync.Mutex
	reqs []dispatcher.SendRequest
}

func (s *fakeSender) Send(_ context.Context, req dispatcher.SendRequest) (*domain.Message, error) {
	if _, err := domain.ValidateContent(req.Content); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return &domain.Message{ID: fmt.Sprintf("m%d", len(s.reqs)), SenderID: req.SenderID}, nil
}

type fixture struct {
	hub      *hub.Hub
	presence *fakePresence
	sender   *fakeSender
	m        *Manager
}

func setup() *fixture {
	f := &fixture{hub: hub.NewHub(), presence: &fakePresence{}, sender: &fakeSender{}}
	f.m = NewManager(f.hub, f.presence, fakeRooms{"r1": {"alice", "bob"}, "r2": {"bob"}}, f.sender)
	return f
}

func newClient(id, userID string) *hub.Client {
	return hub.NewClient(id, userID, userID+"-name", nil, config.WebSocketConfig{SendBuffer: 16})
}

// next pops the next queued frame of c.
func next(t *testing.T, c *hub.Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.Send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestManager_ConnectAcknowledgesAndGoesOnline(t *testing.T) {
	f := setup()
	ctx := context.Background()
	c := newClient("s1", "alice")

	f.m.Connect(ctx, c)

	ev := next(t, c)
	assert.Equal(t, domain.EventConnected, ev["type"])
	assert.Equal(t, "alice", ev["userId"])
	assert.Equal(t, []presenceCall{{true, "alice"}}, f.presence.calls)

	st, ok := f.m.State("s1")
	require.True(t, ok)
	assert.Equal(t, "alice", st.UserID)
	assert.Equal(t, "alice-name", st.Username)
}

func TestManager_OfflineOnlyAfterLastSocket(t *testing.T) {
	f := setup()
	ctx := context.Background()
	c1 := newClient("s1", "alice")
	c2 := newClient("s2", "alice")

	f.m.Connect(ctx, c1)
	f.m.Connect(ctx, c2)

	f.m.Disconnect(ctx, c1)
	assert.Len(t, f.presence.calls, 2, "still connected on another socket")

	f.m.Disconnect(ctx, c2)
	assert.Equal(t, presenceCall{false, "alice"}, f.presence.calls[2])

	_, ok := f.m.State("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.hub.ClientCount())
}

func TestManager_JoinRoomRequiresMembership(t *testing.T) {
	f := setup()
	ctx := context.Background()
	c := newClient("s1", "alice")
	f.m.Connect(ctx, c)
	next(t, c)

	f.m.HandleFrame(ctx, c, []byte(`{"type":"join_room","roomId":"r2"}`))
	ev := next(t, c)
	assert.Equal(t, domain.EventError, ev["type"])
	assert.Equal(t, domain.ErrCodeAuthorizationDenied, ev["code"])
	assert.Equal(t, 0, f.hub.RoomClientCount("r2"))

	f.m.HandleFrame(ctx, c, []byte(`{"type":"join_room","roomId":"missing"}`))
	assert.Equal(t, domain.ErrCodeNotFound, next(t, c)["code"])

	f.m.HandleFrame(ctx, c, []byte(`{"type":"join_room","roomId":""}`))
	assert.Equal(t, domain.ErrCodeValidation, next(t, c)["code"])

	f.m.HandleFrame(ctx, c, []byte(`{"type":"join_room","roomId":"r1"}`))
	ev = next(t, c)
	assert.Equal(t, domain.EventJoinedRoom, ev["type"])
	assert.Equal(t, "r1", ev["roomId"])
	assert.Equal(t, 1, f.hub.RoomClientCount("r1"))

	st, _ := f.m.State("s1")
	assert.Equal(t, []string{"r1"}, st.Rooms)

	f.m.HandleFrame(ctx, c, []byte(`{"type":"leave_room","roomId":"r1"}`))
	assert.Equal(t, domain.EventLeftRoom, next(t, c)["type"])
	assert.Equal(t, 0, f.hub.RoomClientCount("r1"))
}

func TestManager_SendMessage(t *testing.T) {
	f := setup()
	ctx := context.Background()
	c := newClient("s1", "alice")
	f.m.Connect(ctx, c)
	next(t, c)

	f.m.HandleFrame(ctx, c, []byte(`{"type":"send_message","recipientId":"bob","content":"hi"}`))
	ev := next(t, c)
	assert.Equal(t, domain.EventMessageSent, ev["type"])
	assert.Equal(t, "m1", ev["messageId"])

	require.Len(t, f.sender.reqs, 1)
	assert.Equal(t, dispatcher.SendRequest{
		SenderID:       "alice",
		SenderUsername: "alice-name",
		RecipientID:    "bob",
		Content:        "hi",
	}, f.sender.reqs[0])

	f.m.HandleFrame(ctx, c, []byte(`{"type":"send_message","recipientId":"bob","content":""}`))
	assert.Equal(t, domain.ErrCodeValidation, next(t, c)["code"])
}

func TestManager_PingAndUnknownEvents(t *testing.T) {
	f := setup()
	ctx := context.Background()
	c := newClient("s1", "alice")
	f.m.Connect(ctx, c)
	next(t, c)

	f.m.HandleFrame(ctx, c, []byte(`{"type":"ping"}`))
	assert.Equal(t, domain.EventPong, next(t, c)["type"])

	f.m.HandleFrame(ctx, c, []byte(`{"type":"dance"}`))
	assert.Equal(t, domain.ErrCodeUnknownEvent, next(t, c)["code"])

	f.m.HandleFrame(ctx, c, []byte(`not json`))
	assert.Equal(t, domain.ErrCodeValidation, next(t, c)["code"])
}

func TestRouter_ErrorKeepsState(t *testing.T) {
	r := NewRouter()
	r.Handle("boom", func(_ context.Context, st State, _ json.RawMessage) (State, []any, error) {
		st.Rooms = append(st.Rooms, "leaked")
		return st, nil, fmt.Errorf("%w: nope", domain.ErrConflict)
	})

	st := State{SocketID: "s1", UserID: "alice"}
	got, out := r.Dispatch(context.Background(), st, []byte(`{"type":"boom"}`))
	assert.Empty(t, got.Rooms)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ErrCodeConflict, out[0].(*domain.ErrorEvent).Code)
}

func TestRouter_InternalErrorsAreNotLeaked(t *testing.T) {
	r := NewRouter()
	r.Handle("boom", func(_ context.Context, st State, _ json.RawMessage) (State, []any, error) {
		return st, nil, errors.New("pq: connection refused to 10.0.0.5:5432")
	})

	_, out := r.Dispatch(context.Background(), State{SocketID: "s1"}, []byte(`{"type":"boom"}`))
	require.Len(t, out, 1)
	ev := out[0].(*domain.ErrorEvent)
	assert.Equal(t, domain.ErrCodeInternal, ev.Code)
	assert.Equal(t, "internal error", ev.Message)
}
