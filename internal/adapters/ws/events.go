package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/app"
	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

type joinChatPayload struct {
	ChatID int64 `json:"chatId" validate:"required"`
}

type leaveChatPayload struct {
	ChatID int64 `json:"chatId" validate:"required"`
	// AlsoCloseSession is set when the client is navigating to an
	// unauthenticated route and the whole session should end with the
	// room membership.
	AlsoCloseSession bool `json:"alsoCloseSession"`
}

type typingPayload struct {
	ChatID   int64 `json:"chatId" validate:"required"`
	IsTyping bool  `json:"isTyping"`
}

func (ctl *Controller) handleEvent(ctx context.Context, userID domain.UserID, hid core.HandleID, c *wsConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("bad envelope")
		ctl.sendEvent(c, core.EvError, map[string]any{"error": "bad_payload"})
		return
	}

	switch env.Event {
	case core.EvJoinLobby:
		ctl.ack(c, env.AckID, ctl.session.Connect(ctx, userID, hid, c))
	case core.EvLeaveLobby:
		ctl.session.LeaveLobby(hid)
		ctl.ack(c, env.AckID, nil)
	case core.EvJoinChat:
		var p joinChatPayload
		if !ctl.decode(c, env, &p) {
			return
		}
		ctl.ack(c, env.AckID, ctl.session.JoinRoom(ctx, userID, domain.RoomID(p.ChatID)))
	case core.EvLeaveChat:
		var p leaveChatPayload
		if !ctl.decode(c, env, &p) {
			return
		}
		ctl.ack(c, env.AckID, ctl.session.LeaveRoom(ctx, userID, hid, domain.RoomID(p.ChatID), p.AlsoCloseSession))
	case core.EvTyping:
		var p typingPayload
		if !ctl.decode(c, env, &p) {
			return
		}
		if !ctl.typing.Allow(userID) {
			log.Debug().Str("module", "ws").Int64("user", int64(userID)).Msg("typing rate limited")
			return
		}
		// Fire-and-forget; a stale typing signal is not worth an error frame.
		_ = ctl.session.Typing(userID, domain.RoomID(p.ChatID), p.IsTyping)
	case core.EvLogout:
		ctl.session.Logout(userID, hid)
		ctl.typing.Forget(userID)
		ctl.ack(c, env.AckID, nil)
	case core.EvPing:
		ctl.sendEvent(c, core.EvPong, nil)
	default:
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
		ctl.ack(c, env.AckID, errors.New("unknown event"))
	}
}

// decode unmarshals and validates the payload, answering the ack with a
// failure when the client sent garbage.
func (ctl *Controller) decode(c *wsConn, env core.Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("event", env.Event).Msg("bad payload")
		ctl.ack(c, env.AckID, errors.New("bad payload"))
		return false
	}
	if err := ctl.validate.Struct(out); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("event", env.Event).Msg("invalid payload")
		ctl.ack(c, env.AckID, errors.New("invalid payload"))
		return false
	}
	return true
}

// ack answers exactly once when the client asked for one. Errors map to
// success:false with a human-readable reason; nothing crosses the wire
// otherwise.
func (ctl *Controller) ack(c *wsConn, ackID *int64, err error) {
	if ackID == nil {
		return
	}
	a := core.Ack{AckID: *ackID, Success: err == nil}
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUserNotFound):
			a.Message = "user not found"
		case errors.Is(err, app.ErrNotOnline):
			a.Message = "not connected"
		case errors.Is(err, app.ErrNotInRoom):
			a.Message = "not in that chat"
		default:
			a.Message = err.Error()
		}
	}
	ctl.sendEvent(c, core.EvAck, a)
}

func (ctl *Controller) sendEvent(c *wsConn, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("marshal payload")
		return
	}
	frame, err := json.Marshal(core.Envelope{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("marshal envelope")
		return
	}
	_ = c.TrySend(frame)
}
