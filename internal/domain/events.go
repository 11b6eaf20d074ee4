package domain

type PresenceKind int

const (
	PresenceJoined PresenceKind = iota
	PresenceLeft
)

func (k PresenceKind) String() string {
	if k == PresenceJoined {
		return "joined"
	}
	return "left"
}

// PresenceEvent is derived from a registry mutation and exists only during
// dispatch; it is never stored.
type PresenceEvent struct {
	Kind      PresenceKind
	Username  string
	UserCount int
}

// TypingEvent is superseded by the next event for the same username.
type TypingEvent struct {
	Username string
	IsTyping bool
}

// RenameEvent is broadcast only when rename announcements are enabled.
type RenameEvent struct {
	OldUsername string
	NewUsername string
}
