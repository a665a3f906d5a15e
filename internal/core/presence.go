package core

import "github.com/parlorchat/parlor/internal/domain"

// OnlineUser is the cached minimal profile of one online user.
// It exists iff the user holds at least one live connection.
type OnlineUser struct {
	ID            domain.UserID  `json:"id"`
	Name          string         `json:"name"`
	AvatarRef     *string        `json:"avatarRef,omitempty"`
	CurrentRoomID *domain.RoomID `json:"currentRoomId,omitempty"`
}
