package core

import (
	"encoding/json"

	"github.com/parlorchat/parlor/internal/domain"
)

// Inbound event names, sent by clients over the socket.
const (
	EvJoinLobby  = "joinLobby"
	EvLeaveLobby = "leaveLobby"
	EvJoinChat   = "joinChat"
	EvLeaveChat  = "leaveChat"
	EvTyping     = "typing"
	EvLogout     = "logout"
	EvPing       = "ping"
)

// Outbound event names, emitted by the engine.
const (
	EvUserJoined         = "userJoined"
	EvUserLeft           = "userLeft"
	EvTypingIndicator    = "typingIndicator"
	EvPresenceUpdate     = "presenceUpdate"
	EvChatPresenceUpdate = "chatPresenceUpdate"
	EvPong               = "pong"
	EvAck                = "ack"
	EvError              = "error"
)

// Forwarded events for already-persisted payloads, relayed on behalf of
// the chat backend to whoever is online.
const (
	EvChatMessageReceived   = "chatMessageReceived"
	EvChatCreated           = "chatCreated"
	EvChatDeleted           = "chatDeleted"
	EvFriendRequestReceived = "friendRequestReceived"
	EvFriendRequestAccepted = "friendRequestAccepted"
)

// Envelope is the wire frame: one event name plus its payload. AckID is
// set by clients that want an Ack back for this particular message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ackId,omitempty"`
}

// RoomNotice is the payload of userJoined/userLeft. ChatID is nil on
// userLeft (the user no longer has a room).
type RoomNotice struct {
	UserID    domain.UserID  `json:"userId"`
	Name      string         `json:"name"`
	AvatarRef *string        `json:"avatarRef,omitempty"`
	ChatID    *domain.RoomID `json:"chatId"`
}

// TypingNotice is forwarded verbatim to the room; the engine stores nothing.
type TypingNotice struct {
	UserID   domain.UserID `json:"userId"`
	Name     string        `json:"name"`
	IsTyping bool          `json:"isTyping"`
}

// Ack answers exactly one client message carrying an AckID.
type Ack struct {
	AckID   int64  `json:"ackId"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
