package domain

// RoomID identifies a chat's real-time scope. Users hold at most one
// active room at a time; the lobby is not a room and has no id.
type RoomID int64
