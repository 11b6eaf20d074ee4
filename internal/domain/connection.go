// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"time"
	"unicode"
)

const MaxUsernameLen = 36

type ConnID string

// ConnState is the lifecycle of a connection record. Removed is terminal.
type ConnState int

const (
	StateAnonymous ConnState = iota
	StateNamed
	StateRemoved
)

func (s ConnState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateNamed:
		return "named"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// Connection is one live client session. The registry owns the canonical
// record; other components hold only the ConnID.
type Connection struct {
	ID       ConnID
	Username string
	State    ConnState
	JoinedAt time.Time

	// LastTypingStartedAt is zero while the connection is not typing.
	LastTypingStartedAt time.Time
}

// NormalizeUsername trims surrounding whitespace and validates length.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrInvalidUsername
	}
	if len(name) > MaxUsernameLen {
		return "", ErrInvalidUsername
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidUsername
		}
	}
	return name, nil
}

// UsernameKey is the case-insensitive uniqueness key for a username.
func UsernameKey(name string) string {
	return strings.ToLower(name)
}
