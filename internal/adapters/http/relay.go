package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor/internal/app"
	"github.com/parlorchat/parlor/internal/domain"
)

// RelayHandlers accept already-persisted payloads from the chat backend
// and hand them to the forwarder. The payloads stay opaque; the engine
// only decides who is online to receive them.
type RelayHandlers struct {
	fwd *app.Forwarder
}

func NewRelayHandlers(fwd *app.Forwarder) *RelayHandlers {
	return &RelayHandlers{fwd: fwd}
}

func toUserIDs(ids []int64) []domain.UserID {
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out
}

func (h *RelayHandlers) Message(c *gin.Context) {
	var body struct {
		ParticipantIDs []int64         `json:"participantIds"`
		Message        json.RawMessage `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad request body"})
		return
	}
	h.fwd.MessageReceived(toUserIDs(body.ParticipantIDs), body.Message)
	c.JSON(http.StatusAccepted, gin.H{"message": "forwarded"})
}

func (h *RelayHandlers) ChatCreated(c *gin.Context) {
	var body struct {
		ParticipantIDs []int64         `json:"participantIds"`
		Chat           json.RawMessage `json:"chat"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad request body"})
		return
	}
	h.fwd.ChatCreated(toUserIDs(body.ParticipantIDs), body.Chat)
	c.JSON(http.StatusAccepted, gin.H{"message": "forwarded"})
}

func (h *RelayHandlers) ChatDeleted(c *gin.Context) {
	var body struct {
		ParticipantIDs []int64 `json:"participantIds"`
		ChatID         int64   `json:"chatId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad request body"})
		return
	}
	h.fwd.ChatDeleted(toUserIDs(body.ParticipantIDs), domain.RoomID(body.ChatID))
	c.JSON(http.StatusAccepted, gin.H{"message": "forwarded"})
}

func (h *RelayHandlers) FriendRequest(c *gin.Context) {
	var body struct {
		ReceiverID int64           `json:"receiverId"`
		Request    json.RawMessage `json:"request"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad request body"})
		return
	}
	h.fwd.FriendRequestReceived(domain.UserID(body.ReceiverID), body.Request)
	c.JSON(http.StatusAccepted, gin.H{"message": "forwarded"})
}

func (h *RelayHandlers) FriendRequestAccepted(c *gin.Context) {
	var body struct {
		SenderID   int64           `json:"senderId"`
		ReceiverID int64           `json:"receiverId"`
		Request    json.RawMessage `json:"request"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad request body"})
		return
	}
	h.fwd.FriendRequestAccepted(domain.UserID(body.SenderID), domain.UserID(body.ReceiverID), body.Request)
	c.JSON(http.StatusAccepted, gin.H{"message": "forwarded"})
}
