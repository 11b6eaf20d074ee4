package core

import "errors"

// Frame is an encoded outbound envelope, ready for the wire.
type Frame []byte

// Class ranks a frame for the backpressure drop policy. When a recipient's
// queue is full, the oldest ephemeral frame is evicted before a critical
// frame is ever refused.
type Class int

const (
	// Critical frames (chat, presence, errors) must not be silently dropped.
	Critical Class = iota
	// Ephemeral frames (typing) are superseded by the next one anyway.
	Ephemeral
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Outbound abstracts one recipient's transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Outbound interface {
	// TrySend never blocks. It returns ErrBackpressure when the recipient
	// cannot absorb the frame and ErrConnClosed after Close.
	TrySend(f Frame, c Class) error
	Close()
}
