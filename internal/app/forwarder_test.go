package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

func TestForwarder_MessageToOnlineParticipants(t *testing.T) {
	reg := NewRegistry()
	fwd := NewForwarder(NewDispatcher(reg))
	c1a, c1b := &fakeConn{}, &fakeConn{}
	reg.RegisterConnection(1, "h1a", c1a, user(1, "ada"))
	reg.RegisterConnection(1, "h1b", c1b, user(1, "ada"))

	// Participant 2 is offline; the message waits in storage for them.
	fwd.MessageReceived([]domain.UserID{1, 2}, map[string]any{"text": "hi"})

	assert.Equal(t, 1, c1a.count(t, core.EvChatMessageReceived))
	assert.Equal(t, 1, c1b.count(t, core.EvChatMessageReceived))
}

func TestForwarder_ChatDeleted(t *testing.T) {
	reg := NewRegistry()
	fwd := NewForwarder(NewDispatcher(reg))
	c := &fakeConn{}
	reg.RegisterConnection(1, "h1", c, user(1, "ada"))

	fwd.ChatDeleted([]domain.UserID{1}, 7)

	raw := c.payloads(t, core.EvChatDeleted)
	require.Len(t, raw, 1)
	assert.JSONEq(t, `{"chatId":7}`, string(raw[0]))
}

func TestForwarder_FriendRequestAcceptedBothSides(t *testing.T) {
	reg := NewRegistry()
	fwd := NewForwarder(NewDispatcher(reg))
	sender, receiver := &fakeConn{}, &fakeConn{}
	reg.RegisterConnection(1, "h1", sender, user(1, "ada"))
	reg.RegisterConnection(2, "h2", receiver, user(2, "bob"))

	fwd.FriendRequestAccepted(1, 2, map[string]any{"id": 5})

	assert.Equal(t, 1, sender.count(t, core.EvFriendRequestAccepted))
	assert.Equal(t, 1, receiver.count(t, core.EvFriendRequestAccepted))
}
