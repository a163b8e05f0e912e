package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a transcript entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderSystem:
		return true
	}
	return false
}

const (
	// Greeting opens every fresh conversation.
	Greeting = "Hello 👋 I'm your AI assistant. How can I help you today?"
	// FailureNotice replaces a reply whose stream could not be completed.
	FailureNotice = "❌ Error receiving streaming response."
)

// Message is one entry of the client-side transcript.
type Message struct {
	ID         string    `json:"id"`
	Sender     Sender    `json:"sender"`
	Text       string    `json:"text"`
	IsThinking bool      `json:"isThinking,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewID returns a fresh opaque message identifier.
func NewID() string {
	return uuid.NewString()
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:        NewID(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// NewThinking creates the bot placeholder shown while a reply is pending.
func NewThinking() Message {
	msg := NewMessage(SenderBot, "")
	msg.IsThinking = true
	return msg
}

// NewGreeting creates the canonical greeting entry.
func NewGreeting() Message {
	return NewMessage(SenderBot, Greeting)
}

// NewFailure creates the fixed failure notice shown in place of a broken reply.
func NewFailure() Message {
	return NewMessage(SenderBot, FailureNotice)
}

// Snapshot is the durable form of a conversation.
type Snapshot struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
}
