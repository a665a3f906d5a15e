package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  []core.Frame
	closed  bool
	sendErr error
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	buf := make(core.Frame, len(f))
	copy(buf, f)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes(t *testing.T) []core.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

// count reports how many frames carried the given event.
func (c *fakeConn) count(t *testing.T, event string) int {
	t.Helper()
	n := 0
	for _, env := range c.envelopes(t) {
		if env.Event == event {
			n++
		}
	}
	return n
}

// payloads returns the raw data of every frame carrying the event,
// oldest first.
func (c *fakeConn) payloads(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range c.envelopes(t) {
		if env.Event == event {
			out = append(out, env.Data)
		}
	}
	return out
}

// lastPresence decodes the newest presenceUpdate the connection saw.
func (c *fakeConn) lastPresence(t *testing.T) []core.OnlineUser {
	t.Helper()
	raw := c.payloads(t, core.EvPresenceUpdate)
	require.NotEmpty(t, raw, "no presenceUpdate received")
	var out []core.OnlineUser
	require.NoError(t, json.Unmarshal(raw[len(raw)-1], &out))
	return out
}

// lastRoomPresence decodes the newest chatPresenceUpdate.
func (c *fakeConn) lastRoomPresence(t *testing.T) []core.OnlineUser {
	t.Helper()
	raw := c.payloads(t, core.EvChatPresenceUpdate)
	require.NotEmpty(t, raw, "no chatPresenceUpdate received")
	var out []core.OnlineUser
	require.NoError(t, json.Unmarshal(raw[len(raw)-1], &out))
	return out
}

func (c *fakeConn) notices(t *testing.T, event string) []core.RoomNotice {
	t.Helper()
	var out []core.RoomNotice
	for _, raw := range c.payloads(t, event) {
		var n core.RoomNotice
		require.NoError(t, json.Unmarshal(raw, &n))
		out = append(out, n)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type fakeResolver struct {
	mu    sync.Mutex
	users map[domain.UserID]domain.User
	// beforeResolve, when set, runs before each lookup returns. Tests
	// use it to interleave a disconnect with an in-flight join.
	beforeResolve func(domain.UserID)
}

func newFakeResolver(users ...domain.User) *fakeResolver {
	r := &fakeResolver{users: make(map[domain.UserID]domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeResolver) FindByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	r.mu.Lock()
	hook := r.beforeResolve
	u, ok := r.users[id]
	r.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return &u, nil
}

func containsUser(users []core.OnlineUser, id domain.UserID) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func roomOfUser(users []core.OnlineUser, id domain.UserID) *domain.RoomID {
	for _, u := range users {
		if u.ID == id {
			return u.CurrentRoomID
		}
	}
	return nil
}
