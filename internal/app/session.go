package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

var (
	// ErrNotOnline marks events that arrive for a user with no live
	// connections, typically because a disconnect raced the event.
	ErrNotOnline = errors.New("user has no live connections")
	// ErrNotInRoom marks a leave for a room the user never joined.
	ErrNotInRoom = errors.New("user is not in that room")
)

// Session drives the per-connection lifecycle: connect, lobby and room
// joins/leaves, typing signals, logout and abrupt disconnect. It owns no
// state itself; every mutation goes through the registry, and identity
// is re-resolved before each mutation that depends on it. Because the
// resolver call is a suspension point, preconditions are re-checked
// against the registry after it returns instead of assumed stable.
type Session struct {
	reg  *Registry
	disp *Dispatcher
	ids  core.IdentityResolver
}

func NewSession(reg *Registry, disp *Dispatcher, ids core.IdentityResolver) *Session {
	return &Session{reg: reg, disp: disp, ids: ids}
}

// Connect resolves the authenticated principal and registers the
// connection. On resolver failure nothing is registered and the caller
// must close the connection. Also serves joinLobby re-registrations:
// registering an already-known handle just refreshes the cached identity.
func (s *Session) Connect(ctx context.Context, principalID domain.UserID, hid core.HandleID, conn core.Conn) error {
	user, err := s.ids.FindByID(ctx, principalID)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	s.reg.RegisterConnection(principalID, hid, conn, user)
	s.disp.ToAll(core.EvPresenceUpdate, s.reg.ListOnline())
	log.Info().Str("module", "app.session").Int64("user", int64(principalID)).Str("handle", string(hid)).Msg("connected")
	return nil
}

// JoinRoom moves the user into roomID. Identity is re-resolved first
// (the cached profile may be stale), then the registry state is
// re-checked because the user can disconnect while the lookup is in
// flight. Joining the room the user is already in is idempotent and
// emits nothing. Joining room B while in room A emits the userLeft for
// A before the userJoined for B.
func (s *Session) JoinRoom(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error {
	user, err := s.ids.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	prev, online := s.reg.RoomOf(userID)
	if !online {
		return ErrNotOnline
	}
	s.reg.UpdateProfile(userID, user.Name, user.AvatarRef)

	if prev != nil && *prev == roomID {
		log.Debug().Str("module", "app.session").Int64("user", int64(userID)).Int64("room", int64(roomID)).Msg("already in room")
		return nil
	}
	if prev != nil {
		s.disp.ToRoom(*prev, core.EvUserLeft, core.RoomNotice{
			UserID:    userID,
			Name:      user.Name,
			AvatarRef: user.AvatarRef,
		}, &userID)
	}

	if !s.reg.SetCurrentRoom(userID, &roomID) {
		// Disconnected between the check above and now.
		return ErrNotOnline
	}
	s.disp.ToRoom(roomID, core.EvUserJoined, core.RoomNotice{
		UserID:    userID,
		Name:      user.Name,
		AvatarRef: user.AvatarRef,
		ChatID:    &roomID,
	}, &userID)

	if prev != nil {
		s.disp.ToRoom(*prev, core.EvChatPresenceUpdate, s.reg.ListInRoom(*prev), nil)
	}
	s.disp.ToRoom(roomID, core.EvChatPresenceUpdate, s.reg.ListInRoom(roomID), nil)
	s.disp.ToAll(core.EvPresenceUpdate, s.reg.ListOnline())
	log.Info().Str("module", "app.session").Int64("user", int64(userID)).Int64("room", int64(roomID)).Msg("joined room")
	return nil
}

// LeaveRoom moves the user back to the lobby. alsoCloseSession covers
// route-aware teardown: the caller decides whether leaving this room
// also ends the whole session (e.g. navigation to an unauthenticated
// page), and the handler then unregisters and closes the connection.
func (s *Session) LeaveRoom(ctx context.Context, userID domain.UserID, hid core.HandleID, roomID domain.RoomID, alsoCloseSession bool) error {
	user, err := s.ids.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	prev, online := s.reg.RoomOf(userID)
	if !online {
		return ErrNotOnline
	}
	if prev == nil || *prev != roomID {
		log.Warn().Str("module", "app.session").Int64("user", int64(userID)).Int64("room", int64(roomID)).Msg("leave for room not joined")
		return ErrNotInRoom
	}

	s.disp.ToRoom(roomID, core.EvUserLeft, core.RoomNotice{
		UserID:    userID,
		Name:      user.Name,
		AvatarRef: user.AvatarRef,
	}, &userID)
	s.reg.SetCurrentRoom(userID, nil)
	s.disp.ToRoom(roomID, core.EvChatPresenceUpdate, s.reg.ListInRoom(roomID), nil)
	s.disp.ToAll(core.EvPresenceUpdate, s.reg.ListOnline())
	log.Info().Str("module", "app.session").Int64("user", int64(userID)).Int64("room", int64(roomID)).Msg("left room")

	if alsoCloseSession {
		conn, _ := s.reg.ConnOf(hid)
		s.Disconnect(hid)
		if conn != nil {
			conn.Close()
		}
	}
	return nil
}

// Typing forwards the indicator to the room, excluding the sender. The
// engine stores nothing; each viewer keeps its own typing state.
func (s *Session) Typing(userID domain.UserID, roomID domain.RoomID, isTyping bool) error {
	p, ok := s.reg.ProfileOf(userID)
	if !ok {
		return ErrNotOnline
	}
	s.disp.ToRoom(roomID, core.EvTypingIndicator, core.TypingNotice{
		UserID:   userID,
		Name:     p.Name,
		IsTyping: isTyping,
	}, &userID)
	return nil
}

// Logout is the explicit end of one connection. If the user is in a
// room it behaves as a leave first, then unregisters the handle; the
// lobby only hears about it when presence actually changed.
func (s *Session) Logout(userID domain.UserID, hid core.HandleID) {
	hadRoom := false
	if p, ok := s.reg.ProfileOf(userID); ok && p.CurrentRoomID != nil {
		hadRoom = true
		rid := *p.CurrentRoomID
		s.disp.ToRoom(rid, core.EvUserLeft, core.RoomNotice{
			UserID:    userID,
			Name:      p.Name,
			AvatarRef: p.AvatarRef,
		}, &userID)
		s.reg.SetCurrentRoom(userID, nil)
		s.disp.ToRoom(rid, core.EvChatPresenceUpdate, s.reg.ListInRoom(rid), nil)
	}
	_, wentOffline, ok := s.reg.UnregisterConnection(hid)
	if !ok {
		return
	}
	if wentOffline || hadRoom {
		s.disp.ToAll(core.EvPresenceUpdate, s.reg.ListOnline())
	}
	log.Info().Str("module", "app.session").Int64("user", int64(userID)).Str("handle", string(hid)).Msg("logged out")
}

// Disconnect handles abrupt transport closure. The room the user was in
// is read atomically with the unregistration, since no leaveChat ever
// arrived and the profile dies with the last handle. Unknown handles are
// a no-op; a logout or a racing teardown may already have won.
func (s *Session) Disconnect(hid core.HandleID) {
	p, wentOffline, ok := s.reg.UnregisterConnection(hid)
	if !ok || !wentOffline {
		return
	}
	if p.CurrentRoomID != nil {
		rid := *p.CurrentRoomID
		s.disp.ToRoom(rid, core.EvUserLeft, core.RoomNotice{
			UserID:    p.ID,
			Name:      p.Name,
			AvatarRef: p.AvatarRef,
		}, &p.ID)
		s.disp.ToRoom(rid, core.EvChatPresenceUpdate, s.reg.ListInRoom(rid), nil)
	}
	s.disp.ToAll(core.EvPresenceUpdate, s.reg.ListOnline())
	log.Info().Str("module", "app.session").Int64("user", int64(p.ID)).Str("handle", string(hid)).Msg("went offline")
}

// LeaveLobby deregisters the handle while keeping the socket open, the
// counterpart of a joinLobby re-registration through Connect.
func (s *Session) LeaveLobby(hid core.HandleID) {
	s.Disconnect(hid)
}

// UpdateProfile merges freshly persisted identity fields into the cache
// and pushes the change to everyone watching presence.
func (s *Session) UpdateProfile(userID domain.UserID, name string, avatarRef *string) {
	if !s.reg.UpdateProfile(userID, name, avatarRef) {
		return
	}
	if rid, online := s.reg.RoomOf(userID); online && rid != nil {
		s.disp.ToRoom(*rid, core.EvChatPresenceUpdate, s.reg.ListInRoom(*rid), nil)
	}
	s.disp.ToAll(core.EvPresenceUpdate, s.reg.ListOnline())
}
