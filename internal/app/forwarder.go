package app

import (
	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

// Forwarder relays already-persisted events from the chat backend to
// whoever is currently online. It adds no delivery guarantee: offline
// recipients are skipped and pick the data up from storage on their
// next fetch.
type Forwarder struct {
	disp *Dispatcher
}

func NewForwarder(disp *Dispatcher) *Forwarder {
	return &Forwarder{disp: disp}
}

// MessageReceived pushes a persisted chat message to each participant.
func (f *Forwarder) MessageReceived(participants []domain.UserID, message any) {
	for _, uid := range participants {
		f.disp.ToUser(uid, core.EvChatMessageReceived, message)
	}
}

// ChatCreated notifies each participant of a freshly created chat.
func (f *Forwarder) ChatCreated(participants []domain.UserID, chat any) {
	for _, uid := range participants {
		f.disp.ToUser(uid, core.EvChatCreated, chat)
	}
}

// ChatDeleted notifies each participant that the chat is gone.
func (f *Forwarder) ChatDeleted(participants []domain.UserID, chatID domain.RoomID) {
	payload := struct {
		ChatID domain.RoomID `json:"chatId"`
	}{ChatID: chatID}
	for _, uid := range participants {
		f.disp.ToUser(uid, core.EvChatDeleted, payload)
	}
}

// FriendRequestReceived pushes a new friend request to its receiver.
func (f *Forwarder) FriendRequestReceived(receiverID domain.UserID, request any) {
	f.disp.ToUser(receiverID, core.EvFriendRequestReceived, request)
}

// FriendRequestAccepted tells both sides the request went through.
func (f *Forwarder) FriendRequestAccepted(senderID, receiverID domain.UserID, request any) {
	f.disp.ToUser(senderID, core.EvFriendRequestAccepted, request)
	f.disp.ToUser(receiverID, core.EvFriendRequestAccepted, request)
}
