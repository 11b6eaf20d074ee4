// Package protocol defines the wire envelopes exchanged with clients and the
// validation applied before any state mutation. Field names are stable so
// older and newer clients can coexist during a rolling deploy.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownEventKind  = errors.New("unknown event kind")
	ErrEmptyMessage      = errors.New("empty message")
	ErrMessageTooLong    = errors.New("message too long")
)

type ClientEventKind string

const (
	KindJoin        ClientEventKind = "join"
	KindMessage     ClientEventKind = "message"
	KindTypingStart ClientEventKind = "typing_start"
	KindTypingStop  ClientEventKind = "typing_stop"
	KindRename      ClientEventKind = "rename"
	KindPing        ClientEventKind = "ping"
)

// ClientEvent is one decoded inbound envelope.
type ClientEvent struct {
	Kind     ClientEventKind
	Username string
	Body     string
}

// Codec validates and (de)serializes envelopes. MaxMessageLen bounds the
// normalized message body in bytes.
type Codec struct {
	MaxMessageLen int
}

func NewCodec(maxMessageLen int) *Codec {
	if maxMessageLen <= 0 {
		maxMessageLen = 512
	}
	return &Codec{MaxMessageLen: maxMessageLen}
}

type inboundEnvelope struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Body     string `json:"body"`
}

// Decode parses a raw inbound payload into a ClientEvent. Message bodies are
// normalized here so no component downstream ever sees an invalid body.
func (c *Codec) Decode(raw []byte) (ClientEvent, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientEvent{}, ErrMalformedEnvelope
	}
	if env.Type == "" {
		return ClientEvent{}, ErrMalformedEnvelope
	}

	switch ClientEventKind(env.Type) {
	case KindJoin, KindRename:
		return ClientEvent{Kind: ClientEventKind(env.Type), Username: env.Username}, nil
	case KindMessage:
		body, err := c.normalizeBody(env.Body)
		if err != nil {
			return ClientEvent{}, err
		}
		return ClientEvent{Kind: KindMessage, Body: body}, nil
	case KindTypingStart, KindTypingStop, KindPing:
		return ClientEvent{Kind: ClientEventKind(env.Type)}, nil
	default:
		return ClientEvent{}, ErrUnknownEventKind
	}
}

// normalizeBody trims surrounding whitespace and strips control characters.
// Newlines survive so multi-line messages stay intact.
func (c *Codec) normalizeBody(raw string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)

	body := strings.TrimSpace(stripped)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if len(body) > c.MaxMessageLen {
		return "", ErrMessageTooLong
	}
	return body, nil
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		// Outbound envelopes are plain structs; marshal cannot fail.
		panic(err)
	}
	return core.Frame(b)
}

// EncodeWelcome acknowledges a successful join or rename to the sender only.
func EncodeWelcome(username string, users []string, userCount int) core.Frame {
	return encode(struct {
		Type      string   `json:"type"`
		Username  string   `json:"username"`
		Users     []string `json:"users"`
		UserCount int      `json:"user_count"`
	}{"welcome", username, users, userCount})
}

func EncodePresence(ev domain.PresenceEvent) core.Frame {
	typ := "user_joined"
	if ev.Kind == domain.PresenceLeft {
		typ = "user_left"
	}
	return encode(struct {
		Type      string `json:"type"`
		Username  string `json:"username"`
		UserCount int    `json:"user_count"`
	}{typ, ev.Username, ev.UserCount})
}

func EncodeRename(ev domain.RenameEvent) core.Frame {
	return encode(struct {
		Type        string `json:"type"`
		OldUsername string `json:"old_username"`
		Username    string `json:"username"`
	}{"user_renamed", ev.OldUsername, ev.NewUsername})
}

func EncodeMessage(m domain.Message) core.Frame {
	return encode(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Body     string `json:"body"`
		SentAt   int64  `json:"sent_at"`
	}{"message", m.SenderUsername, m.Body, m.SentAt.Unix()})
}

func EncodeTyping(ev domain.TypingEvent) core.Frame {
	return encode(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		IsTyping bool   `json:"is_typing"`
	}{"typing", ev.Username, ev.IsTyping})
}

func EncodePong() core.Frame {
	return encode(struct {
		Type string `json:"type"`
	}{"pong"})
}

// EncodeError is answered to the offending sender only, never broadcast.
func EncodeError(kind, detail string) core.Frame {
	return encode(struct {
		Type   string `json:"type"`
		Kind   string `json:"kind"`
		Detail string `json:"detail,omitempty"`
	}{"error", kind, detail})
}

// ErrorKind maps a validation or decode failure onto its wire name.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidUsername), errors.Is(err, domain.ErrUsernameTaken):
		return "invalid_username"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, ErrUnknownEventKind):
		return "unknown_event"
	case errors.Is(err, ErrMalformedEnvelope):
		return "malformed_envelope"
	default:
		return "internal"
	}
}
