package domain

import "time"

// Message is a single chat line. The sender's username is denormalized at
// send time so a later rename does not rewrite history. Immutable once built.
type Message struct {
	SenderID       ConnID
	SenderUsername string
	Body           string
	SentAt         time.Time
}

func NewMessage(sender ConnID, username, body string) Message {
	return Message{
		SenderID:       sender,
		SenderUsername: username,
		Body:           body,
		SentAt:         time.Now(),
	}
}
