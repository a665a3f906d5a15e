package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

type engine struct {
	sess    *Session
	reg     *Registry
	ids     *fakeResolver
	handles int
}

func newEngine(users ...domain.User) *engine {
	reg := NewRegistry()
	ids := newFakeResolver(users...)
	return &engine{
		sess: NewSession(reg, NewDispatcher(reg), ids),
		reg:  reg,
		ids:  ids,
	}
}

func (e *engine) connect(t *testing.T, id int64) (*fakeConn, core.HandleID) {
	t.Helper()
	e.handles++
	hid := core.HandleID(fmt.Sprintf("h%d", e.handles))
	c := &fakeConn{}
	require.NoError(t, e.sess.Connect(context.Background(), domain.UserID(id), hid, c))
	return c, hid
}

func threeUsers() []domain.User {
	return []domain.User{
		{ID: 1, Name: "ada"},
		{ID: 2, Name: "bob"},
		{ID: 3, Name: "cleo"},
	}
}

func TestSession_ConnectBroadcastsPresence(t *testing.T) {
	e := newEngine(threeUsers()...)
	c1, _ := e.connect(t, 1)
	e.connect(t, 2)

	// u1 saw its own connect and u2's.
	require.Equal(t, 2, c1.count(t, core.EvPresenceUpdate))
	online := c1.lastPresence(t)
	assert.True(t, containsUser(online, 1))
	assert.True(t, containsUser(online, 2))
}

func TestSession_ConnectUnknownPrincipal(t *testing.T) {
	e := newEngine() // resolver knows nobody
	c := &fakeConn{}

	err := e.sess.Connect(context.Background(), 99, "h1", c)
	require.ErrorIs(t, err, core.ErrUserNotFound)
	assert.Empty(t, e.reg.ListOnline(), "failed resolution must register nothing")
	assert.Empty(t, c.frames)
}

// The join fan-out scenario: U1 and U2 in the lobby, U3 already in room
// 7. U1 joins 7: U3 hears userJoined and sees the refreshed room
// presence, U2 only sees the lobby-wide refresh.
func TestSession_JoinRoomFanout(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	c1, _ := e.connect(t, 1)
	c2, _ := e.connect(t, 2)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))

	c1.reset()
	c2.reset()
	c3.reset()
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))

	// U3, a room member, hears the arrival.
	joined := c3.notices(t, core.EvUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, domain.UserID(1), joined[0].UserID)
	assert.Equal(t, "ada", joined[0].Name)
	require.NotNil(t, joined[0].ChatID)
	assert.Equal(t, domain.RoomID(7), *joined[0].ChatID)

	roomPresence := c3.lastRoomPresence(t)
	assert.Len(t, roomPresence, 2)
	assert.True(t, containsUser(roomPresence, 1))
	assert.True(t, containsUser(roomPresence, 3))

	// U2 is not a member: no userJoined, but the lobby refresh shows
	// U1's new room.
	assert.Zero(t, c2.count(t, core.EvUserJoined))
	lobby := c2.lastPresence(t)
	rid := roomOfUser(lobby, 1)
	require.NotNil(t, rid)
	assert.Equal(t, domain.RoomID(7), *rid)

	// The joiner gets no echo of its own arrival.
	assert.Zero(t, c1.count(t, core.EvUserJoined))
}

func TestSession_JoinRoomIdempotent(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	e.connect(t, 1)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))

	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))

	assert.Equal(t, 1, c3.count(t, core.EvUserJoined), "duplicate join must not storm the room")
}

func TestSession_SwitchRoomsEmitsLeaveThenJoin(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	c1, _ := e.connect(t, 1)
	c2, _ := e.connect(t, 2) // stays in room A
	c3, _ := e.connect(t, 3) // stays in room B
	require.NoError(t, e.sess.JoinRoom(ctx, 2, 1))
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 2))
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 1))

	c1.reset()
	c2.reset()
	c3.reset()
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 2))

	// Room A hears exactly one departure, with the room cleared.
	left := c2.notices(t, core.EvUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID(1), left[0].UserID)
	assert.Nil(t, left[0].ChatID)
	assert.Zero(t, c2.count(t, core.EvUserJoined))

	// Room B hears exactly one arrival.
	joined := c3.notices(t, core.EvUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, domain.UserID(1), joined[0].UserID)
	assert.Zero(t, c3.count(t, core.EvUserLeft))

	// Both rooms got their presence refreshed.
	assert.False(t, containsUser(c2.lastRoomPresence(t), 1))
	assert.True(t, containsUser(c3.lastRoomPresence(t), 1))
}

func TestSession_LeaveRoom(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	_, h1 := e.connect(t, 1)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))

	c3.reset()
	require.NoError(t, e.sess.LeaveRoom(ctx, 1, h1, 7, false))

	left := c3.notices(t, core.EvUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID(1), left[0].UserID)
	assert.Nil(t, left[0].ChatID)
	assert.False(t, containsUser(c3.lastRoomPresence(t), 1))

	rid, online := e.reg.RoomOf(1)
	require.True(t, online, "leaving a room must not end the session")
	assert.Nil(t, rid)
}

func TestSession_LeaveRoomNotJoined(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	_, h1 := e.connect(t, 1)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))

	c3.reset()
	err := e.sess.LeaveRoom(ctx, 1, h1, 7, false)
	require.ErrorIs(t, err, ErrNotInRoom)
	assert.Zero(t, c3.count(t, core.EvUserLeft), "stale leave must stay silent")
}

func TestSession_LeaveRoomAlsoClosesSession(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	c1, h1 := e.connect(t, 1)
	c2, _ := e.connect(t, 2)
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))

	c2.reset()
	require.NoError(t, e.sess.LeaveRoom(ctx, 1, h1, 7, true))

	assert.True(t, c1.isClosed())
	assert.False(t, containsUser(e.reg.ListOnline(), 1))
	assert.False(t, containsUser(c2.lastPresence(t), 1))
}

func TestSession_TypingStaysInRoom(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	c1, _ := e.connect(t, 1)
	c2, _ := e.connect(t, 2)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 2, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 9))

	require.NoError(t, e.sess.Typing(1, 7, true))

	typed := c2.payloads(t, core.EvTypingIndicator)
	require.Len(t, typed, 1)
	assert.Zero(t, c1.count(t, core.EvTypingIndicator), "no echo to the typist")
	assert.Zero(t, c3.count(t, core.EvTypingIndicator), "room 9 must not hear room 7")
}

func TestSession_TypingWhileOffline(t *testing.T) {
	e := newEngine(threeUsers()...)
	err := e.sess.Typing(1, 7, true)
	assert.ErrorIs(t, err, ErrNotOnline)
}

func TestSession_MultiDeviceDisconnect(t *testing.T) {
	e := newEngine(threeUsers()...)
	_, h1a := e.connect(t, 1)
	_, h1b := e.connect(t, 1)
	c2, _ := e.connect(t, 2)

	c2.reset()
	e.sess.Disconnect(h1a)

	// Other device still online: observers hear nothing.
	assert.Zero(t, c2.count(t, core.EvPresenceUpdate))
	assert.True(t, containsUser(e.reg.ListOnline(), 1))

	e.sess.Disconnect(h1b)
	require.Equal(t, 1, c2.count(t, core.EvPresenceUpdate), "going offline is announced exactly once")
	assert.False(t, containsUser(c2.lastPresence(t), 1))
}

// Abrupt network loss while in a room: no leaveChat ever arrived, yet
// the room must still hear the departure and presence must drop the user.
func TestSession_AbruptDisconnectInRoom(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	_, h1 := e.connect(t, 1)
	c2, _ := e.connect(t, 2)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))

	c2.reset()
	c3.reset()
	e.sess.Disconnect(h1)

	left := c3.notices(t, core.EvUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID(1), left[0].UserID)
	assert.Nil(t, left[0].ChatID)
	assert.False(t, containsUser(c3.lastRoomPresence(t), 1))

	assert.False(t, containsUser(c2.lastPresence(t), 1))
	assert.Zero(t, c2.count(t, core.EvUserLeft), "lobby-only users are not room audience")
}

func TestSession_DuplicateDisconnect(t *testing.T) {
	e := newEngine(threeUsers()...)
	_, h1 := e.connect(t, 1)
	c2, _ := e.connect(t, 2)

	c2.reset()
	e.sess.Disconnect(h1)
	e.sess.Disconnect(h1) // logout already raced us; must be silent

	assert.Equal(t, 1, c2.count(t, core.EvPresenceUpdate))
}

func TestSession_LogoutInsideRoom(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	_, h1 := e.connect(t, 1)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))

	c3.reset()
	e.sess.Logout(1, h1)

	left := c3.notices(t, core.EvUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.UserID(1), left[0].UserID)
	assert.False(t, containsUser(c3.lastRoomPresence(t), 1))
	assert.False(t, containsUser(c3.lastPresence(t), 1))
	assert.Empty(t, e.reg.ConnsOfUser(1))
}

// A disconnect landing while a join is still awaiting identity
// resolution: whichever mutation runs second sees the true state. Here
// the disconnect wins the race, so the join must give up cleanly.
func TestSession_JoinRacesDisconnect(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	_, h1 := e.connect(t, 1)
	c3, _ := e.connect(t, 3)
	require.NoError(t, e.sess.JoinRoom(ctx, 3, 7))

	c3.reset()
	e.ids.beforeResolve = func(id domain.UserID) {
		if id == 1 {
			e.ids.beforeResolve = nil
			e.sess.Disconnect(h1)
		}
	}

	err := e.sess.JoinRoom(ctx, 1, 7)
	require.ErrorIs(t, err, ErrNotOnline)
	assert.Zero(t, c3.count(t, core.EvUserJoined), "a dead connection must not appear in the room")
	assert.False(t, containsUser(e.reg.ListInRoom(7), 1))
}

func TestSession_UpdateProfilePropagates(t *testing.T) {
	e := newEngine(threeUsers()...)
	ctx := context.Background()
	e.connect(t, 1)
	c2, _ := e.connect(t, 2)
	require.NoError(t, e.sess.JoinRoom(ctx, 1, 7))
	require.NoError(t, e.sess.JoinRoom(ctx, 2, 7))

	c2.reset()
	e.sess.UpdateProfile(1, "countess", nil)

	lobby := c2.lastPresence(t)
	for _, u := range lobby {
		if u.ID == 1 {
			assert.Equal(t, "countess", u.Name)
		}
	}
	room := c2.lastRoomPresence(t)
	assert.True(t, containsUser(room, 1))
}
