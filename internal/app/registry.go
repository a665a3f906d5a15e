package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

// Registry is the single authority for who is online, over which
// connections, and in which room. Every mutation and snapshot runs
// under one mutex so that concurrently resolved events serialize here
// instead of racing each other.
//
// Invariants held inside the critical sections:
//   - a profile exists for a user iff the user owns at least one conn
//   - a handle belongs to at most one user
//   - room membership is only ever the CurrentRoomID field; there is no
//     second room→users structure to diverge from it
type Registry struct {
	mu       sync.Mutex
	profiles map[domain.UserID]*core.OnlineUser
	conns    map[domain.UserID]map[core.HandleID]core.Conn
	owners   map[core.HandleID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[domain.UserID]*core.OnlineUser),
		conns:    make(map[domain.UserID]map[core.HandleID]core.Conn),
		owners:   make(map[core.HandleID]domain.UserID),
	}
}

// RegisterConnection adds a live connection for the user, creating the
// cached profile on the user's first connection. Fresh identity fields
// always win over the cached ones, but CurrentRoomID survives so that a
// second device joining does not yank the first one out of its room.
// Registering the same handle twice is a no-op.
func (r *Registry) RegisterConnection(userID domain.UserID, hid core.HandleID, conn core.Conn, user *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owners[hid]; ok && prev != userID {
		// A handle may never sit in two users' sets.
		r.removeLocked(prev, hid)
	}

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[core.HandleID]core.Conn)
		r.conns[userID] = set
	}
	set[hid] = conn
	r.owners[hid] = userID

	if p, ok := r.profiles[userID]; ok {
		p.Name = user.Name
		p.AvatarRef = user.AvatarRef
	} else {
		r.profiles[userID] = &core.OnlineUser{
			ID:        userID,
			Name:      user.Name,
			AvatarRef: user.AvatarRef,
		}
	}
	log.Info().Str("module", "app.registry").Int64("user", int64(userID)).Str("handle", string(hid)).Int("conns", len(set)).Msg("connection registered")
}

// UnregisterConnection removes the handle from whichever user owns it.
// wentOffline reports whether this was the user's last connection. The
// returned profile is the state at the moment of removal, captured inside
// the critical section because the profile is gone afterwards and callers
// still need the room and name for the departure notices.
func (r *Registry) UnregisterConnection(hid core.HandleID) (profile core.OnlineUser, wentOffline, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[hid]
	if !ok {
		return core.OnlineUser{}, false, false
	}
	if p := r.profiles[userID]; p != nil {
		profile = *p
	}
	wentOffline = r.removeLocked(userID, hid)
	log.Info().Str("module", "app.registry").Int64("user", int64(userID)).Str("handle", string(hid)).Bool("offline", wentOffline).Msg("connection unregistered")
	return profile, wentOffline, true
}

// ConnOf looks up the transport endpoint behind one handle.
func (r *Registry) ConnOf(hid core.HandleID) (core.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.owners[hid]
	if !ok {
		return nil, false
	}
	c, ok := r.conns[userID][hid]
	return c, ok
}

// removeLocked detaches hid from userID and deletes the profile when the
// set empties. Callers hold r.mu.
func (r *Registry) removeLocked(userID domain.UserID, hid core.HandleID) (wentOffline bool) {
	delete(r.owners, hid)
	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(set, hid)
	if len(set) == 0 {
		delete(r.conns, userID)
		delete(r.profiles, userID)
		return true
	}
	return false
}

// SetCurrentRoom moves the user to roomID, or out of any room when nil.
// A single call covers the whole move; no intermediate state where the
// user is in both rooms or neither is observable. No-op when offline.
func (r *Registry) SetCurrentRoom(userID domain.UserID, roomID *domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return false
	}
	// Assign a fresh pointer so snapshots taken earlier stay intact.
	if roomID == nil {
		p.CurrentRoomID = nil
	} else {
		rid := *roomID
		p.CurrentRoomID = &rid
	}
	return true
}

// UpdateProfile merges freshly resolved identity fields into the cache.
// No-op when the user is offline.
func (r *Registry) UpdateProfile(userID domain.UserID, name string, avatarRef *string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return false
	}
	p.Name = name
	p.AvatarRef = avatarRef
	return true
}

// ListOnline returns a copy of every online profile.
func (r *Registry) ListOnline() []core.OnlineUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.OnlineUser, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, *p)
	}
	return out
}

// ListInRoom filters the online snapshot down to one room. Room
// membership is exactly this query; there is no separate store.
func (r *Registry) ListInRoom(roomID domain.RoomID) []core.OnlineUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.OnlineUser, 0, 4)
	for _, p := range r.profiles {
		if p.CurrentRoomID != nil && *p.CurrentRoomID == roomID {
			out = append(out, *p)
		}
	}
	return out
}

// RoomOf reports the user's current room. online is false when the user
// has no live connections at all.
func (r *Registry) RoomOf(userID domain.UserID) (roomID *domain.RoomID, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, false
	}
	return p.CurrentRoomID, true
}

// ProfileOf returns a copy of the user's cached profile.
func (r *Registry) ProfileOf(userID domain.UserID) (core.OnlineUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return core.OnlineUser{}, false
	}
	return *p, true
}

// ConnsOfUser snapshots the user's live connections for fan-out.
func (r *Registry) ConnsOfUser(userID domain.UserID) []core.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return appendConns(nil, r.conns[userID])
}

// ConnsInRoom snapshots every connection of every user currently in the
// room, optionally excluding one user (so senders skip their own echo).
func (r *Registry) ConnsInRoom(roomID domain.RoomID, exclude *domain.UserID) []core.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Conn
	for uid, p := range r.profiles {
		if p.CurrentRoomID == nil || *p.CurrentRoomID != roomID {
			continue
		}
		if exclude != nil && uid == *exclude {
			continue
		}
		out = appendConns(out, r.conns[uid])
	}
	return out
}

// AllConns snapshots every registered connection.
func (r *Registry) AllConns() []core.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Conn
	for _, set := range r.conns {
		out = appendConns(out, set)
	}
	return out
}

func appendConns(dst []core.Conn, set map[core.HandleID]core.Conn) []core.Conn {
	for _, c := range set {
		dst = append(dst, c)
	}
	return dst
}
