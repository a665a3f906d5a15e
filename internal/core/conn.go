package core

// Frame is a raw serialized payload delivered to one connection.
type Frame []byte

// HandleID identifies one live socket for its whole lifetime.
type HandleID string

// Conn abstracts the transport endpoint of a single connection.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}
